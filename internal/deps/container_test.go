package deps

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joefazee/parimutuel/internal/events"
	"github.com/joefazee/parimutuel/internal/lock"
	"github.com/joefazee/parimutuel/internal/logger"
	"github.com/joefazee/parimutuel/internal/sanitizer"
	"github.com/joefazee/parimutuel/internal/security"
)

func TestNewContainer_Defaults(t *testing.T) {
	c := NewContainer(&security.MockMaker{}, sanitizer.NewHTMLStripper(), nil)

	assert.Nil(t, c.DB)
	assert.Nil(t, c.Redis)
	assert.IsType(t, &logger.NullLogger{}, c.Logger)
	assert.IsType(t, &lock.KeyedMutex{}, c.Locker)
	assert.IsType(t, &events.LogPublisher{}, c.Publisher)
}

func TestNewContainer_Options(t *testing.T) {
	pub := events.NewMemoryPublisher()
	locker := lock.NewKeyedMutex()

	c := NewContainer(nil, nil, logger.NewNullLogger(), WithPublisher(pub), WithLocker(locker))

	assert.Same(t, pub, c.Publisher)
	assert.Same(t, locker, c.Locker)
}

func TestContainer_Services(t *testing.T) {
	c := NewContainer(nil, nil, nil)
	assert.Nil(t, c.GetService("settlement"))

	c.RegisterService("settlement", "svc")
	assert.Equal(t, "svc", c.GetService("settlement"))
}
