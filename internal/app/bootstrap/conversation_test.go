package bootstrap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/creditsales-ai-platform/internal/config"
	"github.com/wolfman30/creditsales-ai-platform/internal/conversation"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

type recordingMessenger struct {
	mu    sync.Mutex
	texts []string
}

func (m *recordingMessenger) SendText(_ context.Context, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, body)
	return nil
}

func (m *recordingMessenger) SendImage(context.Context, string, string, string) error { return nil }

func (m *recordingMessenger) MarkAsRead(context.Context, string) error { return nil }

func (m *recordingMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.texts)
}

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		SessionBackend:  "redis",
		SessionTTL:      72 * time.Hour,
		LockTimeout:     5 * time.Second,
		LockStaleAfter:  time.Minute,
		MinCredit:       100,
		MinAge:          25,
		MaxObjections:   3,
		GASOSegmentName: "gaso",
	}
}

func TestBuildConversationRequiresMessenger(t *testing.T) {
	if _, err := BuildConversation(context.Background(), Dependencies{Config: testConfig()}); err == nil {
		t.Fatalf("expected error without messenger")
	}
	if _, err := BuildConversation(context.Background(), Dependencies{}); err == nil {
		t.Fatalf("expected error without config")
	}
}

func TestBuildConversationAppliesEngineDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.MinAge = 0
	cfg.MaxObjections = 0
	cfg.GASOSegmentName = "gas"

	conv, err := BuildConversation(context.Background(), Dependencies{Config: cfg, Messenger: &recordingMessenger{}, Logger: logging.Nop()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := conv.Thresholds
	if got.MinAge != 25 || got.MaxObjections != 3 || got.ProductsPerPage != 3 {
		t.Fatalf("expected engine defaults, got %+v", got)
	}
	if got.AgeGatedSegment != "gas" || got.MinCredit != 100 {
		t.Fatalf("expected configured values to survive, got %+v", got)
	}
}

func TestBuildConversationSessionBackends(t *testing.T) {
	messenger := &recordingMessenger{}
	logger := logging.New("error")

	conv, err := BuildConversation(context.Background(), Dependencies{Config: testConfig(), Messenger: messenger, Logger: logger})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := conv.Sessions.(*conversation.MemorySessionStore); !ok {
		t.Fatalf("expected memory sessions without redis, got %T", conv.Sessions)
	}
	if conv.Recovery != nil {
		t.Fatalf("expected no recovery sweeper without eligibility")
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	conv, err = BuildConversation(context.Background(), Dependencies{Config: testConfig(), Messenger: messenger, Logger: logger, Redis: client})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := conv.Sessions.(*conversation.RedisSessionStore); !ok {
		t.Fatalf("expected redis sessions, got %T", conv.Sessions)
	}
	if _, ok := conv.Parking.(*conversation.RedisParkingLot); !ok {
		t.Fatalf("expected redis parking lot, got %T", conv.Parking)
	}

	cfg := testConfig()
	cfg.SessionBackend = "postgres"
	if _, err := BuildConversation(context.Background(), Dependencies{Config: cfg, Messenger: messenger}); err == nil {
		t.Fatalf("expected error for postgres backend without db")
	}
	cfg.SessionBackend = "etcd"
	if _, err := BuildConversation(context.Background(), Dependencies{Config: cfg, Messenger: messenger}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestBuildConversationProcessesTurnThroughQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	logger := logging.New("error")
	messenger := &recordingMessenger{}

	conv, err := BuildConversation(context.Background(), Dependencies{
		Config:    testConfig(),
		Logger:    logger,
		Redis:     client,
		Messenger: messenger,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q, err := BuildTurnQueue(&appconfig.Config{UseMemoryQueue: true}, aws.Config{}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker := q.Worker(conv.Service, conversation.WithWorkerCount(1), conversation.WithReceiveWaitSeconds(0))
	worker.Start(ctx)

	jobID, err := q.Publisher.EnqueueTurn(ctx, conversation.TurnRequest{
		CustomerKey: "51999000111",
		Text:        "hola",
		Timestamp:   time.Now(),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := q.Jobs.GetJob(ctx, jobID)
		if err == nil && job.Status == conversation.JobStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("turn %s not completed in time (job=%+v, err=%v)", jobID, job, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	worker.Wait()

	if messenger.count() == 0 {
		t.Fatalf("expected the greeting to be sent")
	}
	session, err := conv.Sessions.Get(context.Background(), "51999000111")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if session.Phase.Kind() != conversation.PhaseConfirmingClient {
		t.Fatalf("expected confirming_client, got %s", session.Phase.Kind())
	}
}
