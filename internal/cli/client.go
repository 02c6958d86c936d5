package cli

import (
	"database/sql"
	"fmt"

	"github.com/TWRT/task-tracker/internal/client"
	"github.com/TWRT/task-tracker/internal/client/tracker"
	"github.com/TWRT/task-tracker/internal/config"
	"github.com/TWRT/task-tracker/internal/offline"
	"github.com/TWRT/task-tracker/internal/repository"
	"github.com/TWRT/task-tracker/internal/service"
)

// clientEnv is the offline client wiring: a local replica, its durable
// mutation queue, and the coordinator that replays it against the server.
type clientEnv struct {
	db          *sql.DB
	local       *service.TaskService
	remote      client.TaskReader
	pinger      client.TaskRemote
	queue       *offline.Queue
	coordinator *offline.Coordinator
	session     *offline.Session
}

func openClient(cfg *config.Config) (*clientEnv, error) {
	db, err := repository.InitDB(cfg.Client.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local replica: %w", err)
	}

	local := service.NewTaskService(repository.NewStore(db))
	queue := offline.NewQueue(repository.NewMutationRepository(db))
	remote := tracker.NewTrackerClient(cfg.Client.RemoteURL, cfg.Client.RequestTimeout)
	coordinator := offline.NewCoordinator(queue, remote, cfg.Sync.ReplayTimeout).WithRefresher(local)

	return &clientEnv{
		db:          db,
		local:       local,
		remote:      remote,
		pinger:      remote,
		queue:       queue,
		coordinator: coordinator,
		session:     offline.NewSession(local, queue, coordinator, remote),
	}, nil
}

func (e *clientEnv) Close() error {
	return e.db.Close()
}

func withClient(fn func(env *clientEnv) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	env, err := openClient(cfg)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(env)
}
