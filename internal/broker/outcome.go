package broker

import "github.com/hitoshi/catalyst/internal/model"

// Outcome はcallback処理の結果。LinkedかRejectedのいずれか。
type Outcome interface {
	outcome()
}

// Linked はSteamアカウントの連携とセッション発行に成功した結果。
type Linked struct {
	Account      *model.Account
	ExternalID   string
	SyncedCount  int
	SessionToken string
}

// Rejected はcallbackが拒否された結果。セッションは発行されず、アカウントも変更されない。
type Rejected struct {
	Reason *model.APIError
}

func (Linked) outcome()   {}
func (Rejected) outcome() {}
