package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/config"
)

func TestDefault(t *testing.T) {
	c := config.Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, config.StorageMemory, c.Storage.Type)
	assert.Equal(t, []int32{0}, c.Control.Junctions)
	assert.Equal(t, time.Second, c.Control.PollInterval())
	assert.Equal(t, config.Policy{Threshold: 25, Short: 30, Long: 45}, c.Control.Policy)
	assert.Equal(t, int32(5), c.Control.YellowTime)
}

func TestParse(t *testing.T) {
	c, err := config.Parse([]byte(`
storage:
  type: mongo
  uri: mongodb://localhost:27017
  db: city
control:
  junctions: [3, 7]
  interval: 0.5
  policy:
    threshold: 20
    short: 25
    long: 50
demo:
  enable: true
  interval: 2
`))
	require.NoError(t, err)
	assert.Equal(t, "city", c.Storage.GetDb())
	assert.Equal(t, "phase_state", c.Storage.GetColl())
	assert.Equal(t, []int32{3, 7}, c.Control.Junctions)
	assert.Equal(t, 500*time.Millisecond, c.Control.PollInterval())
	assert.Equal(t, int32(50), c.Control.Policy.Long)
	assert.Equal(t, 2*time.Second, c.Demo.PushInterval())
	assert.Equal(t, int32(40), c.Demo.MaxCount)
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := config.Parse([]byte("control:\n  speed: 3\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(c *config.Config)
		err    error
	}{
		"unknown storage": {func(c *config.Config) { c.Storage.Type = "redis" }, config.ErrInvalidStorage},
		"mongo no uri":    {func(c *config.Config) { c.Storage.Type = config.StorageMongo }, config.ErrInvalidStorage},
		"postgres no dsn": {func(c *config.Config) { c.Storage.Type = config.StoragePostgres }, config.ErrInvalidStorage},
		"bad interval":    {func(c *config.Config) { c.Control.Interval = -1 }, config.ErrInvalidControl},
		"bad policy":      {func(c *config.Config) { c.Control.Policy.Short = 0 }, config.ErrInvalidControl},
		"duplicated ids":  {func(c *config.Config) { c.Control.Junctions = []int32{1, 1} }, config.ErrInvalidControl},
		"bad demo": {func(c *config.Config) {
			c.Demo.Enable = true
			c.Demo.Interval = -2
		}, config.ErrInvalidDemo},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := config.Default()
			tc.mutate(&c)
			assert.ErrorIs(t, c.Validate(), tc.err)
		})
	}
}
