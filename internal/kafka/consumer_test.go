package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/jittakal/kafrotator/pkg/message"
)

// fakeSession records the offsets marked through consumed records.
type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	claims map[string][]int32
	marked []int64
}

func (s *fakeSession) MarkOffset(_ string, _ int32, offset int64, _ string) {
	s.marked = append(s.marked, offset)
}

func (s *fakeSession) Context() context.Context   { return s.ctx }
func (s *fakeSession) Claims() map[string][]int32 { return s.claims }
func (s *fakeSession) MemberID() string           { return "member-1" }
func (s *fakeSession) GenerationID() int32        { return 1 }

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "orders" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type consumerMetrics struct {
	consumed   int
	rebalances int
	assigned   map[string]float64
}

func (m *consumerMetrics) IncMessagesConsumed(string, int32)        { m.consumed++ }
func (m *consumerMetrics) IncRebalances(string)                     { m.rebalances++ }
func (m *consumerMetrics) ObserveRebalanceDuration(string, float64) {}
func (m *consumerMetrics) SetPartitionsAssigned(topic string, n float64) {
	m.assigned[topic] = n
}

func TestOffsetInitial(t *testing.T) {
	tests := []struct {
		name   string
		offset string
		want   int64
	}{
		{"earliest", "earliest", sarama.OffsetOldest},
		{"latest", "latest", sarama.OffsetNewest},
		{"empty defaults to latest", "", sarama.OffsetNewest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := offsetInitial(tt.offset); got != tt.want {
				t.Errorf("offsetInitial(%q) = %v, want %v", tt.offset, got, tt.want)
			}
		})
	}
}

func TestConfigureSecurity(t *testing.T) {
	tests := []struct {
		name          string
		protocol      string
		mechanism     string
		wantErr       bool
		wantSASL      bool
		wantTLS       bool
		wantMechanism sarama.SASLMechanism
	}{
		{name: "empty defaults to plaintext", protocol: ""},
		{name: "plaintext", protocol: "PLAINTEXT"},
		{name: "ssl", protocol: "SSL", wantTLS: true},
		{name: "sasl plain", protocol: "SASL_PLAINTEXT", mechanism: "PLAIN", wantSASL: true, wantMechanism: sarama.SASLTypePlaintext},
		{name: "scram-sha-256 over ssl", protocol: "SASL_SSL", mechanism: "SCRAM-SHA-256", wantSASL: true, wantTLS: true, wantMechanism: sarama.SASLTypeSCRAMSHA256},
		{name: "scram-sha-512", protocol: "SASL_PLAINTEXT", mechanism: "SCRAM-SHA-512", wantSASL: true, wantMechanism: sarama.SASLTypeSCRAMSHA512},
		{name: "aws msk iam", protocol: "SASL_SSL", mechanism: "AWS_MSK_IAM", wantSASL: true, wantTLS: true, wantMechanism: sarama.SASLTypeOAuth},
		{name: "unknown mechanism", protocol: "SASL_SSL", mechanism: "KERBEROS", wantErr: true},
		{name: "unknown protocol", protocol: "INVALID", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sarama.NewConfig()
			err := configureSecurity(cfg, ConsumerConfig{
				SecurityProtocol: tt.protocol,
				SASLMechanism:    tt.mechanism,
				SASLUsername:     "user",
				SASLPassword:     "secret",
				AWSRegion:        "eu-west-1",
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("configureSecurity() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.Net.SASL.Enable != tt.wantSASL {
				t.Errorf("SASL.Enable = %v, want %v", cfg.Net.SASL.Enable, tt.wantSASL)
			}
			if cfg.Net.TLS.Enable != tt.wantTLS {
				t.Errorf("TLS.Enable = %v, want %v", cfg.Net.TLS.Enable, tt.wantTLS)
			}
			if tt.wantSASL && cfg.Net.SASL.Mechanism != tt.wantMechanism {
				t.Errorf("SASL.Mechanism = %v, want %v", cfg.Net.SASL.Mechanism, tt.wantMechanism)
			}
		})
	}
}

func TestConfigureSecurity_MSKRegion(t *testing.T) {
	cfg := sarama.NewConfig()
	if err := configureSecurity(cfg, ConsumerConfig{
		SecurityProtocol: "SASL_SSL",
		SASLMechanism:    "AWS_MSK_IAM",
		AWSRegion:        "ap-south-1",
	}); err != nil {
		t.Fatal(err)
	}

	provider, ok := cfg.Net.SASL.TokenProvider.(*MSKAccessTokenProvider)
	if !ok {
		t.Fatalf("TokenProvider = %T, want *MSKAccessTokenProvider", cfg.Net.SASL.TokenProvider)
	}
	if provider.region != "ap-south-1" {
		t.Errorf("region = %s, want ap-south-1", provider.region)
	}
}

func TestNewConsumerConfig(t *testing.T) {
	cfg, err := newConsumerConfig(ConsumerConfig{
		AutoOffsetReset:     "earliest",
		SessionTimeoutMS:    30000,
		HeartbeatIntervalMS: 10000,
		MaxPollIntervalMS:   120000,
	})
	if err != nil {
		t.Fatalf("newConsumerConfig() error = %v", err)
	}

	if cfg.Consumer.Offsets.Initial != sarama.OffsetOldest {
		t.Errorf("Offsets.Initial = %d, want OffsetOldest", cfg.Consumer.Offsets.Initial)
	}
	if !cfg.Consumer.Offsets.AutoCommit.Enable {
		t.Error("marked offsets must be flushed by the auto committer")
	}
	if cfg.Consumer.Group.Session.Timeout != 30*time.Second {
		t.Errorf("Session.Timeout = %v, want 30s", cfg.Consumer.Group.Session.Timeout)
	}
	if cfg.Consumer.MaxProcessingTime != 2*time.Minute {
		t.Errorf("MaxProcessingTime = %v, want 2m", cfg.Consumer.MaxProcessingTime)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("sarama config is invalid: %v", err)
	}
}

func TestToConsumedMessage(t *testing.T) {
	session := &fakeSession{ctx: context.Background()}
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := &sarama.ConsumerMessage{
		Topic:     "orders",
		Partition: 4,
		Offset:    99,
		Key:       []byte("k"),
		Value:     []byte("v"),
		Timestamp: ts,
		Headers: []*sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte("application/json")},
			nil,
		},
	}

	consumed := toConsumedMessage(session, msg)

	if string(consumed.Value) != "v" || string(consumed.Metadata.Key) != "k" {
		t.Errorf("payload = %q/%q, want k/v", consumed.Metadata.Key, consumed.Value)
	}
	if consumed.Metadata.Offset != 99 || consumed.Metadata.Partition != 4 || !consumed.Metadata.Timestamp.Equal(ts) {
		t.Errorf("metadata = %+v", consumed.Metadata)
	}
	if consumed.Metadata.Headers["content-type"] != "application/json" {
		t.Errorf("headers = %v", consumed.Metadata.Headers)
	}

	if err := consumed.Position().Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(session.marked) != 1 || session.marked[0] != 100 {
		t.Errorf("marked = %v, want [100]", session.marked)
	}
}

func TestConsumerGroupHandler_ConsumeClaim(t *testing.T) {
	metrics := &consumerMetrics{assigned: make(map[string]float64)}
	c := newSaramaConsumer(nil, ConsumerConfig{GroupID: "g"}, testLogger(), metrics)
	out := make(chan *message.ConsumedMessage, 10)
	h := &consumerGroupHandler{consumer: c, messageChan: out, ready: c.ready}

	session := &fakeSession{
		ctx:    context.Background(),
		claims: map[string][]int32{"orders": {0, 1, 2}},
	}
	if err := h.Setup(session); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	select {
	case <-c.ready:
	default:
		t.Error("Setup() should mark the consumer ready")
	}
	if metrics.rebalances != 1 || metrics.assigned["orders"] != 3 {
		t.Errorf("rebalance metrics = %d/%v", metrics.rebalances, metrics.assigned)
	}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	for i := int64(0); i < 3; i++ {
		claim.messages <- &sarama.ConsumerMessage{Topic: "orders", Offset: i, Value: []byte("v")}
	}
	close(claim.messages)

	if err := h.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim() error = %v", err)
	}
	if len(out) != 3 || metrics.consumed != 3 {
		t.Errorf("forwarded %d records, counted %d; want 3", len(out), metrics.consumed)
	}
	if len(session.marked) != 0 {
		t.Errorf("nothing should be marked before commit, got %v", session.marked)
	}

	if err := h.Cleanup(session); err != nil {
		t.Errorf("Cleanup() error = %v", err)
	}
}

func TestConsumerGroupHandler_StopsOnSessionEnd(t *testing.T) {
	c := newSaramaConsumer(nil, ConsumerConfig{GroupID: "g"}, testLogger(), nil)
	h := &consumerGroupHandler{consumer: c, messageChan: make(chan *message.ConsumedMessage), ready: c.ready}

	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders", Offset: 1}

	done := make(chan error, 1)
	go func() { done <- h.ConsumeClaim(session, claim) }()

	// The unbuffered output is never read; cancellation must unblock the handler.
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ConsumeClaim() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim() did not return after the session ended")
	}
}

func TestSaramaConsumer_Closed(t *testing.T) {
	c := newSaramaConsumer(nil, ConsumerConfig{}, testLogger(), nil)
	c.closed = true

	if err := c.Subscribe(context.Background(), []string{"orders"}); err == nil {
		t.Error("Subscribe() on a closed consumer should fail")
	}
	if _, _, err := c.Consume(context.Background()); err == nil {
		t.Error("Consume() on a closed consumer should fail")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on a closed consumer error = %v", err)
	}
}
