package store

import (
	"errors"
	"fmt"

	"github.com/snarg/mtcagent/internal/xmltree"
)

// ErrAssetNotFound is returned for updates or removals of unknown ids.
var ErrAssetNotFound = errors.New("asset not found")

// ErrAssetOpaque is returned when a structural update targets an asset
// whose body never parsed as XML.
var ErrAssetOpaque = errors.New("asset body is not parsed xml")

// Asset is one stored asset record. Doc is nil when the body was
// malformed XML; Raw always holds the original text.
type Asset struct {
	AssetID   string
	AssetType string
	Time      string
	Doc       *xmltree.Node
	Raw       string
	Removed   bool
	Sequence  int64
}

// Body serializes the asset back to XML, expanding comma-separated
// multi-status leaves. Opaque assets return their raw text.
func (a *Asset) Body() string {
	if a.Doc == nil {
		return a.Raw
	}
	return a.Doc.MultiStatusString()
}

// AddAsset stores a new asset (or replaces an existing id outright).
// A malformed body is stored opaque rather than rejected.
func (s *Store) AddAsset(id, assetType, timestamp, body string) *Asset {
	doc, err := xmltree.Parse(body)
	if err != nil {
		doc = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.assetSeq++
	a := &Asset{
		AssetID:   id,
		AssetType: assetType,
		Time:      timestamp,
		Doc:       doc,
		Raw:       body,
		Sequence:  s.assetSeq,
	}
	if _, exists := s.assetCurrent[id]; !exists {
		s.assetCreation = append(s.assetCreation, id)
	}
	s.assetCurrent[id] = a
	s.pushAssetLocked(a)
	return a
}

// UpdateAsset applies either KV-pair text replacements (first
// depth-first match per element name) or a whole-element XML fragment
// replacement, bumps the asset time, and records a fresh snapshot.
func (s *Store) UpdateAsset(id, timestamp string, kvPairs [][2]string, fragment string) (*Asset, error) {
	var frag *xmltree.Node
	if fragment != "" {
		var err error
		frag, err = xmltree.Parse(fragment)
		if err != nil {
			return nil, fmt.Errorf("parse update fragment: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.assetCurrent[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	if cur.Doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrAssetOpaque, id)
	}

	doc := cur.Doc.Clone()
	if frag != nil {
		if doc.Name == frag.Name {
			doc = frag
		} else if !doc.ReplaceElement(frag) {
			return nil, fmt.Errorf("update asset %s: no element %q", id, frag.Name)
		}
	}
	for _, kv := range kvPairs {
		if !doc.UpdateFirst(kv[0], kv[1]) {
			return nil, fmt.Errorf("update asset %s: no element %q", id, kv[0])
		}
	}

	s.assetSeq++
	a := &Asset{
		AssetID:   id,
		AssetType: cur.AssetType,
		Time:      timestamp,
		Doc:       doc,
		Raw:       cur.Raw,
		Sequence:  s.assetSeq,
	}
	s.assetCurrent[id] = a
	s.pushAssetLocked(a)
	return a, nil
}

// RemoveAsset tombstones an asset: removed=true, time updated. The
// record stays in the current map so clients can observe the removal.
func (s *Store) RemoveAsset(id, timestamp string) (*Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeAssetLocked(id, timestamp)
}

func (s *Store) removeAssetLocked(id, timestamp string) (*Asset, error) {
	cur, ok := s.assetCurrent[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	if cur.Removed {
		return nil, fmt.Errorf("%w: %s already removed", ErrAssetNotFound, id)
	}

	s.assetSeq++
	a := &Asset{
		AssetID:   cur.AssetID,
		AssetType: cur.AssetType,
		Time:      timestamp,
		Doc:       cur.Doc,
		Raw:       cur.Raw,
		Removed:   true,
		Sequence:  s.assetSeq,
	}
	s.assetCurrent[id] = a
	return a, nil
}

// RemoveAllAssets tombstones every non-removed asset of the given type,
// in creation order, and returns them in that order.
func (s *Store) RemoveAllAssets(assetType, timestamp string) []*Asset {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*Asset
	for _, id := range s.assetCreation {
		cur, ok := s.assetCurrent[id]
		if !ok || cur.Removed || cur.AssetType != assetType {
			continue
		}
		a, err := s.removeAssetLocked(id, timestamp)
		if err != nil {
			continue
		}
		removed = append(removed, a)
	}
	return removed
}

// Asset returns the current record for an id, tombstones included.
func (s *Store) Asset(id string) (*Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assetCurrent[id]
	return a, ok
}

// Assets returns the latest record per live asset, newest-first,
// optionally filtered by type and capped at count (0 = no cap).
func (s *Store) Assets(assetType string, count int) []*Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []*Asset
	for i := len(s.assetBuf) - 1; i >= 0; i-- {
		snap := s.assetBuf[i]
		if seen[snap.AssetID] {
			continue
		}
		seen[snap.AssetID] = true

		cur, ok := s.assetCurrent[snap.AssetID]
		if !ok || cur.Removed {
			continue
		}
		if assetType != "" && cur.AssetType != assetType {
			continue
		}
		out = append(out, cur)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out
}

// AssetStats returns the number of live assets and the buffer capacity,
// for the response header.
func (s *Store) AssetStats() (count, capacity int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assetCurrent {
		if !a.Removed {
			count++
		}
	}
	return count, s.assetCap
}

func (s *Store) pushAssetLocked(a *Asset) {
	s.assetBuf = append(s.assetBuf, a)
	if len(s.assetBuf) > s.assetCap {
		s.assetBuf = s.assetBuf[1:]
	}
}
