package filesystem

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPlatformUtils 测试平台兼容性工具
func TestPlatformUtils(t *testing.T) {
	utils := NewPlatformUtils()

	t.Run("validate path", func(t *testing.T) {
		assert.NoError(t, utils.ValidatePath("./mailspool"))
		assert.NoError(t, utils.ValidatePath("/var/spool/twmailer"))
		assert.Error(t, utils.ValidatePath(""))
		assert.Error(t, utils.ValidatePath("../outside"))
		assert.Error(t, utils.ValidatePath("spool/../../etc"))
		assert.Error(t, utils.ValidatePath("/"+strings.Repeat("a", utils.GetMaxPathLength()*10)))
	})

	t.Run("normalize path", func(t *testing.T) {
		got := utils.NormalizePath("spool/./inbox/")
		assert.True(t, filepath.IsAbs(got))
		assert.Equal(t, "inbox", filepath.Base(got))
	})

	t.Run("message file filter", func(t *testing.T) {
		assert.True(t, utils.IsMessageFile("alice_msg_1.txt"))
		assert.True(t, utils.IsMessageFile("stray"))
		assert.False(t, utils.IsMessageFile(""))
		assert.False(t, utils.IsMessageFile(".hidden"))
		assert.False(t, utils.IsMessageFile(".alice.lock"))
	})
}
