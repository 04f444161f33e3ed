package kafka

import (
	"crypto/sha256"
	"crypto/sha512"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

var _ sarama.SCRAMClient = (*XDGSCRAMClient)(nil)

// SHA256 and SHA512 are the hash generators of the SCRAM mechanisms Kafka supports.
var (
	SHA256 scram.HashGeneratorFcn = sha256.New
	SHA512 scram.HashGeneratorFcn = sha512.New
)

// scramMechanisms maps a configured mechanism name to its sarama type and hash.
var scramMechanisms = map[string]struct {
	mechanism sarama.SASLMechanism
	hash      scram.HashGeneratorFcn
}{
	"SCRAM-SHA-256": {sarama.SASLTypeSCRAMSHA256, SHA256},
	"SCRAM-SHA-512": {sarama.SASLTypeSCRAMSHA512, SHA512},
}

// XDGSCRAMClient adapts an xdg-go/scram client conversation to sarama.
// A client is single use; sarama builds one per connection.
type XDGSCRAMClient struct {
	HashGeneratorFcn scram.HashGeneratorFcn

	conversation *scram.ClientConversation
}

// Begin prepares the conversation for the given credentials.
func (x *XDGSCRAMClient) Begin(userName, password, authzID string) error {
	client, err := x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.conversation = client.NewConversation()
	return nil
}

// Step answers one server challenge.
func (x *XDGSCRAMClient) Step(challenge string) (string, error) {
	return x.conversation.Step(challenge)
}

// Done reports whether the server signature has been verified.
func (x *XDGSCRAMClient) Done() bool {
	return x.conversation != nil && x.conversation.Done()
}

// configureSCRAM sets mechanism and client generator. It reports false for
// mechanism names that are not SCRAM.
func configureSCRAM(config *sarama.Config, mechanism string) bool {
	m, ok := scramMechanisms[mechanism]
	if !ok {
		return false
	}
	config.Net.SASL.Mechanism = m.mechanism
	config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
		return &XDGSCRAMClient{HashGeneratorFcn: m.hash}
	}
	return true
}
