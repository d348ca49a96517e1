package automerge

import "automerge/internal/syncproto"

// SyncState is a peer's view of one other replica, threaded through
// GenerateSyncMessage/ReceiveSyncMessage across a connection's lifetime
// (spec.md §4.5, §6). Callers own a SyncState per peer; it is not safe
// for concurrent use.
type SyncState = syncproto.State

// InitSyncState returns a fresh SyncState with no prior knowledge of the
// peer (spec.md §6, "init_sync_state()").
func InitSyncState() *SyncState { return syncproto.Init() }

// EncodeSyncState serializes state for storage alongside a connection
// (spec.md §6, "encode_sync_state(state) -> bytes").
func EncodeSyncState(state *SyncState) []byte { return state.Encode() }

// DecodeSyncState reverses EncodeSyncState (spec.md §6,
// "decode_sync_state(bytes) -> state").
func DecodeSyncState(b []byte) (*SyncState, error) {
	s, err := syncproto.DecodeState(b)
	if err != nil {
		return nil, &DecodeError{Offset: -1, Err: err}
	}
	return s, nil
}

// CloneSyncState deep-copies state (spec.md §6, "clone_sync_state").
func CloneSyncState(state *SyncState) *SyncState { return state.Clone() }
