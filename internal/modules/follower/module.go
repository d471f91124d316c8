// Package follower implements the scheduled playlist reconciliation
// module: it fetches mix descriptors from the configured sources,
// drives them through the reconciler, and exposes rebuild/status
// commands over MQTT.
package follower

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/m1ser4ble/mixfollower/internal/adapters/mqtt"
	"github.com/m1ser4ble/mixfollower/pkg/mixp"
)

// Config configures the follower module.
type Config struct {
	NodeID     string
	TopicBase  string
	Interval   time.Duration
	RunOnStart bool
}

// Module runs reconciliation on a startup+interval schedule and serves
// the mix.* command surface. The MQTT client may be nil, in which case
// only the scheduler runs.
type Module struct {
	log      *zap.Logger
	client   *mqtt.Client
	service  *Service
	config   Config
	cmdTopic string

	runCtx context.Context
}

// NewModule initializes the follower module.
func NewModule(log *zap.Logger, client *mqtt.Client, service *Service, cfg Config) (*Module, error) {
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("follower node_id required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = mixp.BaseTopic
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("follower interval must be positive")
	}

	return &Module{
		log:      log,
		client:   client,
		service:  service,
		config:   cfg,
		cmdTopic: mixp.TopicCommands(cfg.TopicBase, cfg.NodeID),
	}, nil
}

// Run starts the module and blocks until the context is done.
func (m *Module) Run(ctx context.Context) error {
	m.runCtx = ctx

	if m.client != nil {
		if err := m.publishPresence(); err != nil {
			return err
		}
		handler := func(_ paho.Client, msg paho.Message) {
			m.handleMessage(msg)
		}
		if err := m.client.Subscribe(m.cmdTopic, 1, handler); err != nil {
			return err
		}
		defer m.client.Unsubscribe(m.cmdTopic)
	}

	if m.config.RunOnStart {
		m.runPass(ctx)
	}

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.runPass(ctx)
		}
	}
}

// runPass runs every configured mix and publishes retained status.
// Per-mix failures are already folded into results; cancellation is the
// only error RunAll surfaces, and the scheduler loop exits right after.
func (m *Module) runPass(ctx context.Context) {
	results, err := m.service.RunAll(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.log.Error("reconciliation pass aborted", zap.Error(err))
		}
		return
	}
	m.log.Info("reconciliation pass complete", zap.Int("mixes", len(results)))
	m.publishStatus()
}

func (m *Module) publishPresence() error {
	presence := mixp.Presence{
		NodeID: m.config.NodeID,
		Kind:   "follower",
		Name:   "Mix Follower",
		Caps: map[string]any{
			"rebuild": true,
			"status":  true,
		},
		TS: time.Now().Unix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.client.Publish(mixp.TopicPresence(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

func (m *Module) publishStatus() {
	if m.client == nil {
		return
	}
	payload, err := json.Marshal(m.service.Status())
	if err != nil {
		m.log.Error("marshal status", zap.Error(err))
		return
	}
	if err := m.client.Publish(mixp.TopicState(m.config.TopicBase, m.config.NodeID), 1, true, payload); err != nil {
		m.log.Error("publish status", zap.Error(err))
	}
}

func (m *Module) handleMessage(msg paho.Message) {
	var cmd mixp.CommandEnvelope
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		m.log.Warn("invalid command", zap.Error(err))
		return
	}

	// A rebuild pass can take minutes; answer it off the handler
	// goroutine so status and sources queries stay responsive.
	if cmd.Type == "mix.rebuild" {
		go m.publishReply(cmd, m.dispatch(cmd))
		return
	}
	m.publishReply(cmd, m.dispatch(cmd))
}

func (m *Module) publishReply(cmd mixp.CommandEnvelope, reply mixp.ReplyEnvelope) {
	if cmd.ReplyTo == "" {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		m.log.Error("marshal reply", zap.Error(err))
		return
	}
	if err := m.client.Publish(cmd.ReplyTo, 1, false, payload); err != nil {
		m.log.Error("publish reply", zap.Error(err))
	}
}

func (m *Module) dispatch(cmd mixp.CommandEnvelope) mixp.ReplyEnvelope {
	reply := mixp.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "ack",
		OK:   true,
		TS:   time.Now().Unix(),
	}

	switch cmd.Type {
	case "mix.rebuild":
		return m.mixRebuild(cmd, reply)
	case "mix.status":
		return m.mixStatus(cmd, reply)
	case "mix.sources":
		return m.mixSources(cmd, reply)
	default:
		return errorReply(cmd, "INVALID", "unsupported command")
	}
}

func (m *Module) mixRebuild(cmd mixp.CommandEnvelope, reply mixp.ReplyEnvelope) mixp.ReplyEnvelope {
	var body mixp.RebuildBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, "INVALID", "invalid body")
	}

	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		results []mixp.MixResult
		err     error
	)
	if body.Source == "" {
		results, err = m.service.RunAll(ctx)
	} else {
		results, err = m.service.RunSource(ctx, body.Source)
	}
	if err != nil {
		return errorReply(cmd, "RUNTIME", err.Error())
	}
	m.publishStatus()

	payload, _ := json.Marshal(mixp.RebuildReply{Results: results})
	reply.Body = payload
	return reply
}

func (m *Module) mixStatus(cmd mixp.CommandEnvelope, reply mixp.ReplyEnvelope) mixp.ReplyEnvelope {
	payload, _ := json.Marshal(m.service.Status())
	reply.Body = payload
	return reply
}

func (m *Module) mixSources(cmd mixp.CommandEnvelope, reply mixp.ReplyEnvelope) mixp.ReplyEnvelope {
	payload, _ := json.Marshal(mixp.SourcesReply{Sources: m.service.Sources()})
	reply.Body = payload
	return reply
}

func errorReply(cmd mixp.CommandEnvelope, code string, message string) mixp.ReplyEnvelope {
	return mixp.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "error",
		OK:   false,
		TS:   time.Now().Unix(),
		Err: &mixp.ReplyError{
			Code:    code,
			Message: message,
		},
	}
}
