package httpserver

import (
	"fmt"
	"io"

	gommonlog "github.com/labstack/gommon/log"

	"github.com/andnich05/CodeEntropyMeter/internal/logger"
)

// echoLogger routes Echo's own log output, such as recovered panics, into
// the module logger. Output, prefix, level and header are owned by the
// central logger, so the corresponding setters do nothing.
type echoLogger struct {
	log logger.Logger
}

func newEchoLogger(l logger.Logger) *echoLogger {
	return &echoLogger{log: l}
}

func (e *echoLogger) Output() io.Writer { return io.Discard }
func (e *echoLogger) SetOutput(io.Writer) {}
func (e *echoLogger) Prefix() string { return "" }
func (e *echoLogger) SetPrefix(string) {}
func (e *echoLogger) Level() gommonlog.Lvl { return gommonlog.INFO }
func (e *echoLogger) SetLevel(gommonlog.Lvl) {}
func (e *echoLogger) SetHeader(string) {}
func (e *echoLogger) Print(i ...any) { e.log.Info(fmt.Sprint(i...)) }
func (e *echoLogger) Printf(f string, a ...any) { e.log.Info(fmt.Sprintf(f, a...)) }
func (e *echoLogger) Printj(j gommonlog.JSON) { e.log.Info("echo", logger.Any("data", j)) }
func (e *echoLogger) Debug(i ...any) { e.log.Debug(fmt.Sprint(i...)) }
func (e *echoLogger) Debugf(f string, a ...any) { e.log.Debug(fmt.Sprintf(f, a...)) }
func (e *echoLogger) Debugj(j gommonlog.JSON) { e.log.Debug("echo", logger.Any("data", j)) }
func (e *echoLogger) Info(i ...any) { e.log.Info(fmt.Sprint(i...)) }
func (e *echoLogger) Infof(f string, a ...any) { e.log.Info(fmt.Sprintf(f, a...)) }
func (e *echoLogger) Infoj(j gommonlog.JSON) { e.log.Info("echo", logger.Any("data", j)) }
func (e *echoLogger) Warn(i ...any) { e.log.Warn(fmt.Sprint(i...)) }
func (e *echoLogger) Warnf(f string, a ...any) { e.log.Warn(fmt.Sprintf(f, a...)) }
func (e *echoLogger) Warnj(j gommonlog.JSON) { e.log.Warn("echo", logger.Any("data", j)) }
func (e *echoLogger) Error(i ...any) { e.log.Error(fmt.Sprint(i...)) }
func (e *echoLogger) Errorf(f string, a ...any) { e.log.Error(fmt.Sprintf(f, a...)) }
func (e *echoLogger) Errorj(j gommonlog.JSON) { e.log.Error("echo", logger.Any("data", j)) }

// Fatal and Panic log at error level and panic instead of exiting the
// process.
func (e *echoLogger) Fatal(i ...any) { e.panic(fmt.Sprint(i...)) }
func (e *echoLogger) Fatalf(f string, a ...any) { e.panic(fmt.Sprintf(f, a...)) }
func (e *echoLogger) Fatalj(j gommonlog.JSON) { e.panic(fmt.Sprint(j)) }
func (e *echoLogger) Panic(i ...any) { e.panic(fmt.Sprint(i...)) }
func (e *echoLogger) Panicf(f string, a ...any) { e.panic(fmt.Sprintf(f, a...)) }
func (e *echoLogger) Panicj(j gommonlog.JSON) { e.panic(fmt.Sprint(j)) }

func (e *echoLogger) panic(msg string) {
	e.log.Error(msg)
	panic(msg)
}
