package altpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostFlusher(t *testing.T) {
	assert := assert.New(t)

	fl, err := HostFlusher()
	if err != nil {
		// arm64 built without cgo cannot flush the instruction cache.
		assert.Nil(fl)
		return
	}
	if assert.NotNil(fl) {
		fl.Sync()
	}
}
