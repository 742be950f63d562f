package types

import "context"

// Transport delivers content to remote recipients and to the user's own
// linked devices. Per-target failures are reported in SendResult.Failed;
// a returned error means the call as a whole failed.
type Transport interface {
	SendMessageToIdentifier(ctx context.Context, req DirectSendRequest) (*SendResult, error)
	SendToGroup(ctx context.Context, req GroupSendRequest) (*SendResult, error)
	SendSyncMessageOnly(ctx context.Context, req SyncSendRequest) (*SendResult, error)
}

// OnlineTransport is a Transport that also knows whether it is connected.
type OnlineTransport interface {
	Transport
	IsOnline() bool
}
