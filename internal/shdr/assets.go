package shdr

import (
	"fmt"
	"strings"
)

// parseAssetCommand parses the four asset verbs. For @ASSET@ bodies
// wrapped in the --multiline--TOKEN sentinel, the parser starts
// buffering and returns nil until the closing sentinel arrives.
func (p *Parser) parseAssetCommand(timestamp string, fields []string) (*AssetCommand, error) {
	verb := AssetVerb(fields[0])
	args := fields[1:]

	switch verb {
	case VerbAsset:
		if len(args) < 3 {
			return nil, fmt.Errorf("%s: want id, type, body", verb)
		}
		cmd := AssetCommand{
			Verb:      verb,
			Timestamp: timestamp,
			AssetID:   args[0],
			AssetType: args[1],
			Body:      strings.Join(args[2:], "|"),
		}
		if token, ok := strings.CutPrefix(cmd.Body, multilinePrefix); ok {
			p.pending = &pendingAsset{cmd: cmd, token: strings.TrimSpace(token)}
			return nil, nil
		}
		return &cmd, nil

	case VerbUpdateAsset:
		if len(args) < 2 {
			return nil, fmt.Errorf("%s: want id and updates", verb)
		}
		cmd := AssetCommand{Verb: verb, Timestamp: timestamp, AssetID: args[0]}
		updates := args[1:]
		if strings.HasPrefix(strings.TrimSpace(updates[0]), "<") {
			cmd.Fragment = strings.Join(updates, "|")
			return &cmd, nil
		}
		if len(updates)%2 != 0 {
			return nil, fmt.Errorf("%s %s: odd number of key/value fields", verb, cmd.AssetID)
		}
		for i := 0; i < len(updates); i += 2 {
			cmd.KVPairs = append(cmd.KVPairs, [2]string{updates[i], updates[i+1]})
		}
		return &cmd, nil

	case VerbRemoveAsset:
		if len(args) < 1 || args[0] == "" {
			return nil, fmt.Errorf("%s: want asset id", verb)
		}
		return &AssetCommand{Verb: verb, Timestamp: timestamp, AssetID: args[0]}, nil

	case VerbRemoveAllAsset:
		if len(args) < 1 || args[0] == "" {
			return nil, fmt.Errorf("%s: want asset type", verb)
		}
		return &AssetCommand{Verb: verb, Timestamp: timestamp, AssetType: args[0]}, nil
	}

	return nil, fmt.Errorf("unknown asset verb %q", fields[0])
}

// feedMultiline buffers raw lines until the closing sentinel, then
// emits the completed @ASSET@ command with the enclosed block as body.
func (p *Parser) feedMultiline(raw string) *AssetCommand {
	if raw == multilinePrefix+p.pending.token {
		cmd := p.pending.cmd
		cmd.Body = strings.Join(p.pending.lines, "\n")
		p.pending = nil
		return &cmd
	}
	p.pending.lines = append(p.pending.lines, raw)
	return nil
}
