package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger represents a file logger for trading activities
type Logger struct {
	account   string
	logFile   *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logDir    string
	debugMode bool
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelStatus  LogLevel = "STATUS"
	LogLevelDebug   LogLevel = "DEBUG"
)

// NewLogger creates a new file logger for the specified account label
func NewLogger(account string) (*Logger, error) {
	return NewLoggerWithDebug(account, false)
}

// NewLoggerWithDebug creates a new file logger with an explicit debug mode
func NewLoggerWithDebug(account string, debugMode bool) (*Logger, error) {
	// Create log directory if it doesn't exist
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Create log filename with timestamp
	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", account, timestamp)
	logPath := filepath.Join(logDir, filename)

	// Open or create log file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Create logger with no prefix (we add our own formatting)
	fileLog := log.New(file, "", 0)

	l := &Logger{
		account:   account,
		logFile:   file,
		logger:    fileLog,
		logDir:    logDir,
		debugMode: debugMode,
	}

	// Write session start header
	l.writeSessionHeader()

	return l, nil
}

// writeSessionHeader writes a session start header to the log
func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
🚀 TRADING SESSION STARTED
================================================================================
Account: %s
Started: %s
Log File: %s_%s.log
================================================================================
`, l.account, time.Now().Format("2006-01-02 15:04:05"),
		l.account, time.Now().Format("2006-01-02"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level. A nil logger
// discards everything, so components can treat logging as optional.
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	logEntry := fmt.Sprintf("[%s] [%s] %s", timestamp, level, message)

	l.logger.Println(logEntry)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs a trading action
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs market status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// LogDebugOnly logs a message only when debug mode is enabled
func (l *Logger) LogDebugOnly(format string, args ...interface{}) {
	if l == nil || !l.debugMode {
		return
	}
	l.Log(LogLevelDebug, format, args...)
}

// LogSignalDecision logs the outcome of a signal evaluation
func (l *Logger) LogSignalDecision(symbol, side string, confidence float64, approved bool, reason string) {
	verdict := "APPROVED"
	if !approved {
		verdict = "REJECTED"
	}
	l.Info("Signal %s %s (confidence %.1f): %s - %s", symbol, side, confidence, verdict, reason)
}

// LogTradeExecution logs trade execution details
func (l *Logger) LogTradeExecution(symbol, side, orderID string, quantity int, fillPrice, stopPrice, targetPrice, slippagePct float64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	tradeLog := fmt.Sprintf(`
[%s] [TRADE] ==================== %s %s EXECUTED ====================
✅ Order ID: %s
📦 Quantity: %d
💰 Fill Price: $%.2f
🛑 Stop: $%.2f | 🎯 Target: $%.2f
📊 Slippage: %.3f%%
=============================================================`,
		timestamp, side, symbol, orderID, quantity, fillPrice, stopPrice, targetPrice, slippagePct*100)

	l.logger.Println(tradeLog)
}

// LogPositionClosed logs a completed position
func (l *Logger) LogPositionClosed(symbol string, entryPrice, exitPrice, rMultiple float64, reason string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	cycleLog := fmt.Sprintf(`
[%s] [TRADE] ==================== POSITION CLOSED ====================
🎯 Symbol: %s
📈 Entry: $%.2f | 🚪 Exit: $%.2f
📊 Result: %+.2fR
📋 Reason: %s
==============================================================`,
		timestamp, symbol, entryPrice, exitPrice, rMultiple, reason)

	l.logger.Println(cycleLog)
}

// LogError logs error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// LogWarning logs warning with context
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	fullMessage := fmt.Sprintf(context+": "+message, args...)
	l.Warning("%s", fullMessage)
}

// Close closes the log file
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		// Write session end footer
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		footer := fmt.Sprintf(`
================================================================================
🛑 TRADING SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, timestamp)
		l.logger.Print(footer)

		return l.logFile.Close()
	}
	return nil
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", l.account, timestamp)
	return filepath.Join(l.logDir, filename)
}
