package emtreceiver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	config "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Config"
	logger "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Logger"
)

const receiverStatusTopic = "receiver/status"

// Receiver owns the MQTT connection and runs the ingestion side of the
// process: dynamic per-device subscriptions, the message pipeline, the
// liveness sweep, and the service heartbeat on receiver/status.
type Receiver struct {
	cfg      *config.ReceiverConfig
	pipeline *Pipeline
	pool     *Pool
	tracker  *Tracker
	hub      Broadcaster
	scheme   IdentityScheme
	log      *logger.Logger

	client mqtt.Client
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReceiver(
	cfg *config.ReceiverConfig,
	pool *Pool,
	tracker *Tracker,
	hub Broadcaster,
	scheme IdentityScheme,
	log *logger.Logger,
) *Receiver {
	return &Receiver{
		cfg:     cfg,
		pool:    pool,
		tracker: tracker,
		hub:     hub,
		scheme:  scheme,
		log:     log.WithComponent("receiver"),
	}
}

// SetPipeline attaches the message pipeline. The pipeline publishes acks
// through the receiver, so it is constructed after it and attached before
// Start.
func (r *Receiver) SetPipeline(p *Pipeline) {
	r.pipeline = p
}

// Start connects to the broker and launches the heartbeat and liveness sweep
// loops. The paho client reconnects on its own; OnConnect re-issues every
// subscription so a reconnect behaves like a fresh start.
func (r *Receiver) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(r.cfg.GetMQTTBrokerURL()).
		SetClientID(r.cfg.MQTT.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(r.cfg.MQTT.KeepAlive).
		SetPingTimeout(r.cfg.MQTT.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)

	if r.cfg.MQTT.BrokerUser != "" {
		opts.SetUsername(r.cfg.MQTT.BrokerUser)
		opts.SetPassword(r.cfg.MQTT.BrokerPass)
	}
	if r.cfg.MQTT.UseTLS {
		tlsCfg, err := r.tlsConfig(r.cfg.MQTT.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		r.log.ErrorWithError(err, "MQTT connection lost, heartbeat suspended")
	}
	opts.OnConnect = func(_ mqtt.Client) {
		r.log.Info("Connected to MQTT broker")
		r.onConnect(ctx)
	}

	r.client = mqtt.NewClient(opts)
	if tk := r.client.Connect(); tk.Wait() && tk.Error() != nil {
		return tk.Error()
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.heartbeatLoop(runCtx)
	}()
	go func() {
		defer r.wg.Done()
		r.tracker.Run(runCtx, r.cfg.Ingest.SweepInterval, r.hub)
	}()

	return nil
}

func (r *Receiver) onConnect(ctx context.Context) {
	sub := r.subscriber()

	// Reconnects must restore subscriptions made before the drop.
	r.pool.Resubscribe(sub)

	if err := r.Reload(ctx); err != nil {
		r.log.ErrorWithError(err, "Initial device reload failed, continuing with existing pool")
	}
	r.publishStatus("active")
}

// Reload refreshes the subscription pool from the registry and registers any
// new devices with the liveness tracker. Exposed so the admin API can trigger
// it on demand.
func (r *Receiver) Reload(ctx context.Context) error {
	if err := r.pool.Reload(ctx, r.subscriber()); err != nil {
		return err
	}
	for _, chipId := range r.pool.ChipIds() {
		r.tracker.Register(chipId)
	}
	r.log.Info(fmt.Sprintf("Subscription pool updated, %d active devices", r.pool.Size()))
	return nil
}

// Stop flushes the stopped status and disconnects cleanly.
func (r *Receiver) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.publishStatus("stopped")
	if r.client != nil && r.client.IsConnected() {
		r.client.Disconnect(500)
	}
	r.wg.Wait()
}

// IsConnected reports broker connectivity for health checks.
func (r *Receiver) IsConnected() bool {
	return r.client != nil && r.client.IsConnected()
}

func (r *Receiver) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Ingest.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.publishStatus("active")
		}
	}
}

func (r *Receiver) publishStatus(status string) {
	if r.client == nil || !r.client.IsConnected() {
		return
	}
	token := r.client.Publish(receiverStatusTopic, 1, false, status)
	if token.Wait() && token.Error() != nil {
		r.log.ErrorWithError(token.Error(), "Failed to publish receiver status")
		return
	}
	r.log.Debug("Receiver status sent: " + status)
}

// Publish implements Publisher for the pipeline's acks.
func (r *Receiver) Publish(topic string, payload []byte) error {
	token := r.client.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (r *Receiver) subscriber() TopicSubscriber {
	return subscriberFunc(func(topic string) error {
		token := r.client.Subscribe(topic, 1, r.onMessage)
		if token.Wait() && token.Error() != nil {
			return token.Error()
		}
		return nil
	})
}

func (r *Receiver) onMessage(_ mqtt.Client, m mqtt.Message) {
	r.pipeline.Handle(context.Background(), m.Topic(), m.Payload())
}

func (r *Receiver) tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}

type subscriberFunc func(topic string) error

func (f subscriberFunc) Subscribe(topic string) error { return f(topic) }
