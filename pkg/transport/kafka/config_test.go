package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSaramaConfigDefaults(t *testing.T) {
	cfg := Config{}
	conf, err := cfg.ToSaramaConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.GetBrokers())
	assert.Equal(t, 5*time.Second, conf.Producer.Timeout)
	assert.Equal(t, 6*time.Second, conf.Consumer.Group.Session.Timeout)
	assert.Equal(t, sarama.OffsetOldest, conf.Consumer.Offsets.Initial)
	assert.True(t, conf.Consumer.Offsets.AutoCommit.Enable)
	assert.Equal(t, time.Second, conf.Consumer.Offsets.AutoCommit.Interval)
	assert.True(t, conf.Producer.Return.Successes)
	assert.Equal(t, sarama.WaitForAll, conf.Producer.RequiredAcks)
	assert.NoError(t, conf.Validate())
}

func TestToSaramaConfigSASL(t *testing.T) {
	cfg := Config{SASL: &SASL{Enable: true, Username: "u", Password: "p", Algorithm: "sha512"}}
	conf, err := cfg.ToSaramaConfig()
	require.NoError(t, err)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), conf.Net.SASL.Mechanism)
	require.NotNil(t, conf.Net.SASL.SCRAMClientGeneratorFunc)
	assert.IsType(t, &XDGSCRAMClient{}, conf.Net.SASL.SCRAMClientGeneratorFunc())

	cfg.SASL.Algorithm = "md5"
	_, err = cfg.ToSaramaConfig()
	assert.Error(t, err)
}

func TestToSaramaConfigBadVersion(t *testing.T) {
	cfg := Config{Version: "not-a-version"}
	_, err := cfg.ToSaramaConfig()
	assert.Error(t, err)
}
