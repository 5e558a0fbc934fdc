package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/config"
)

// -- Test Helper Functions --

// initWithBuffer initializes the global logger writing console output to a buffer.
func initWithBuffer(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

// -- Test Cases --

func TestInitialize(t *testing.T) {
	t.Run("should initialize console logger with colors", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Named("session_manager").Info("This is a test message.")
		Sync()

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, colorGreen, "Info level should be colorized green")
		assert.Contains(t, output, colorReset)
		assert.Contains(t, output, "TestService.session_manager.")
	})

	t.Run("should initialize json logger", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})

		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry), "Log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("should respect the configured level", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "warn", Format: "json"})

		GetLogger().Info("dropped")
		GetLogger().Error("kept")
		Sync()

		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("should write to a log file if configured", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "sociallink.log")
		initWithBuffer(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logPath,
			MaxSize: 1,
		})

		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "info", ServiceName: "First"})
		logger1 := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("test")
		Sync()

		assert.True(t, strings.Contains(buf.String(), "First"))
		assert.False(t, strings.Contains(buf.String(), "Second"))
	})
}

func TestInitialize_FileSinkIsRedacted(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "sociallink.log")
	buf := initWithBuffer(t, config.LoggerConfig{Level: "info", Format: "console", LogFile: logPath})

	GetLogger().Info("jar restored", zap.String("cookies", "sessionid=super-secret"), zap.Int("credential_count", 2))
	Sync()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	for name, out := range map[string]string{"console": buf.String(), "file": string(content)} {
		assert.NotContains(t, out, "super-secret", "%s sink leaked a cookie value", name)
		assert.Contains(t, out, redacted, name)
		assert.Contains(t, out, "credential_count", name)
	}
	assert.NotContains(t, buf.String(), colorReset, "no colors configured")
}

func TestRotatingFile_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	initWithBuffer(t, config.LoggerConfig{Level: "info", Format: "json", LogFile: "~/sl.log"})
	GetLogger().Info("to home")
	Sync()

	_, err := os.Stat(filepath.Join(home, "sl.log"))
	assert.NoError(t, err)
}

func TestTerminalSyncError(t *testing.T) {
	assert.True(t, terminalSyncError(errors.New("sync /dev/stderr: invalid argument")))
	assert.True(t, terminalSyncError(errors.New("sync /dev/stdout: operation not supported")))
	assert.False(t, terminalSyncError(errors.New("write /var/log/sl.log: no space left on device")))
}

func TestGetLogger(t *testing.T) {
	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		initWithBuffer(t, config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})
		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}

func TestCredentialNames_NeverLogsValues(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	creds := []schemas.Credential{
		{Name: "sid_tt", Value: "super-secret-token"},
		{Name: "sessionid", Value: "another-secret"},
	}
	logger.Info("injecting", Account("acct-1"), CredentialNames(creds))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	ctx := entry.ContextMap()
	assert.Equal(t, "acct-1", ctx["account_id"])
	assert.Equal(t, []interface{}{"sid_tt", "sessionid"}, ctx["credential_names"])

	encoded, err := json.Marshal(ctx)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "super-secret-token")
}

func TestRedaction(t *testing.T) {
	buf := initWithBuffer(t, config.LoggerConfig{Level: "info", Format: "json"})

	GetLogger().With(zap.String("vault_key", "c2VjcmV0")).Info("loaded",
		zap.String("cookie", "sessionid=abc"),
		zap.String("csrf_token", "t0k"),
		zap.String("database_url", "postgres://app:hunter2@db:5432/social"),
		zap.Int("credential_count", 3),
	)
	Sync()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, redacted, entry["vault_key"])
	assert.Equal(t, redacted, entry["cookie"])
	assert.Equal(t, redacted, entry["csrf_token"])
	assert.Equal(t, "postgres://app:xxxxx@db:5432/social", entry["database_url"])
	assert.EqualValues(t, 3, entry["credential_count"])
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestRedact_LeavesInputUntouched(t *testing.T) {
	in := []zapcore.Field{zap.String("password", "p"), zap.String("database_url", "postgres://db/x")}
	out := redact(in)
	assert.Equal(t, "p", in[0].String)
	assert.Equal(t, redacted, out[0].String)
	assert.Equal(t, "postgres://db/x", out[1].String)
}
