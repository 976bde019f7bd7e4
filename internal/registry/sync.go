package registry

import (
	"context"
	"time"

	"conciliar/internal/config"
	"conciliar/internal/storage"
)

type SyncService struct {
	db     *storage.DB
	client *Client
}

func NewSyncService(db *storage.DB, cfg config.Config) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg)}
}

// Sync pulls the full B2B client directory and caches it locally. The
// reconciler resolves tax ids against the cache, never the remote API.
func (s *SyncService) Sync(ctx context.Context) (int, error) {
	clients, err := s.client.GetClientsScrollAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.db.UpsertClients(clients); err != nil {
		return 0, err
	}
	_ = s.db.SetMetadata("registry.last_sync", time.Now().UTC().Format(time.RFC3339))
	return len(clients), nil
}
