package api

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIsSpecialChannelName(t *testing.T) {
	assert.True(t, isSpecialChannelName("phoenix"))
	assert.True(t, isSpecialChannelName("admin"))
	assert.True(t, isSpecialChannelName("system"))
	assert.False(t, isSpecialChannelName("room-42"))
	assert.False(t, isSpecialChannelName(""))
}
