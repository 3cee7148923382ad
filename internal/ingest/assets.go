package ingest

import (
	"github.com/rs/zerolog"
	"github.com/snarg/mtcagent/internal/metrics"
	"github.com/snarg/mtcagent/internal/shdr"
	"github.com/snarg/mtcagent/internal/store"
)

// applyAssetCommand mutates the asset store and emits the derived
// ASSET_CHANGED/ASSET_REMOVED observations. The synthetic events are
// sequenced after the mutation that caused them; for a removal the
// ASSET_REMOVED comes before any reverting ASSET_CHANGED.
func (p *Pipeline) applyAssetCommand(deviceUUID string, cmd *shdr.AssetCommand) {
	metrics.AssetCommandsTotal.WithLabelValues(string(cmd.Verb)).Inc()
	log := p.log.With().
		Str("device", deviceUUID).
		Str("verb", string(cmd.Verb)).
		Str("asset_id", cmd.AssetID).
		Logger()

	switch cmd.Verb {
	case shdr.VerbAsset:
		asset := p.st.AddAsset(cmd.AssetID, cmd.AssetType, cmd.Timestamp, cmd.Body)
		if asset.Doc == nil {
			log.Warn().Msg("asset body is not well-formed xml, stored opaque")
		}
		p.emitAssetChanged(deviceUUID, cmd.Timestamp, cmd.AssetID)
		p.publishAsset(deviceUUID, asset)
		log.Debug().Int64("asset_seq", asset.Sequence).Msg("asset stored")

	case shdr.VerbUpdateAsset:
		asset, err := p.st.UpdateAsset(cmd.AssetID, cmd.Timestamp, cmd.KVPairs, cmd.Fragment)
		if err != nil {
			log.Warn().Err(err).Msg("asset update failed")
			return
		}
		p.emitAssetChanged(deviceUUID, cmd.Timestamp, cmd.AssetID)
		p.publishAsset(deviceUUID, asset)

	case shdr.VerbRemoveAsset:
		asset, err := p.st.RemoveAsset(cmd.AssetID, cmd.Timestamp)
		if err != nil {
			log.Warn().Err(err).Msg("asset removal failed")
			return
		}
		p.emitAssetRemoved(deviceUUID, cmd.Timestamp, cmd.AssetID)
		p.revertAssetChanged(deviceUUID, cmd.Timestamp, map[string]bool{cmd.AssetID: true})
		p.publishAsset(deviceUUID, asset)

	case shdr.VerbRemoveAllAsset:
		removed := p.st.RemoveAllAssets(cmd.AssetType, cmd.Timestamp)
		ids := make(map[string]bool, len(removed))
		for _, asset := range removed {
			p.emitAssetRemoved(deviceUUID, cmd.Timestamp, asset.AssetID)
			ids[asset.AssetID] = true
			p.publishAsset(deviceUUID, asset)
		}
		p.revertAssetChanged(deviceUUID, cmd.Timestamp, ids)
		log.Info().Int("removed", len(removed)).Str("asset_type", cmd.AssetType).Msg("assets removed")
	}
}

func (p *Pipeline) emitAssetChanged(deviceUUID, timestamp, value string) {
	p.emitSynthetic(deviceUUID, timestamp, value, p.reg.AssetChangedID, p.log)
}

func (p *Pipeline) emitAssetRemoved(deviceUUID, timestamp, value string) {
	p.emitSynthetic(deviceUUID, timestamp, value, p.reg.AssetRemovedID, p.log)
}

// revertAssetChanged emits ASSET_CHANGED=UNAVAILABLE when the most
// recently changed asset is among the just-removed ids.
func (p *Pipeline) revertAssetChanged(deviceUUID, timestamp string, removed map[string]bool) {
	chgID, ok := p.reg.AssetChangedID(deviceUUID)
	if !ok {
		return
	}
	cur, ok := p.st.CurrentValue(chgID)
	if !ok || !removed[cur.Value.Text()] {
		return
	}
	p.emitAssetChanged(deviceUUID, timestamp, "UNAVAILABLE")
}

func (p *Pipeline) emitSynthetic(deviceUUID, timestamp, value string, idOf func(string) (string, bool), log zerolog.Logger) {
	id, ok := idOf(deviceUUID)
	if !ok {
		log.Warn().Str("device", deviceUUID).Msg("no synthetic asset dataitem for device")
		return
	}
	item, ok := p.reg.DataItem(id)
	if !ok {
		return
	}
	p.commit(deviceUUID, observation(item, timestamp, store.Scalar(value)))
}

func (p *Pipeline) publishAsset(deviceUUID string, asset *store.Asset) {
	if p.sink != nil {
		p.sink.PublishAsset(deviceUUID, asset)
	}
}
