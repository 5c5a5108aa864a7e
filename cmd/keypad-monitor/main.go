// Command keypad-monitor scans a key matrix through per-key virtual pins and
// publishes key transitions to MQTT.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/keypad/internal/gpio"
	"github.com/sweeney/keypad/keypad"
)

// options holds the flags shared by every subcommand.
type options struct {
	driver   string
	chip     string
	rows     []string
	cols     []string
	name     string
	settle   time.Duration
	blocking bool
	presses  []string
	verbose  bool

	log *zap.SugaredLogger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "keypad-monitor",
		Short: "Key matrix scanner and MQTT publisher",
		Long: `Scan a row/column key matrix one key at a time and report key presses.

Examples:
  keypad-monitor run --rows 5,6,13,19 --cols 12,16,20     # cdev lines on gpiochip0
  keypad-monitor print --driver periph --rows GPIO5,GPIO6 --cols GPIO12
  keypad-monitor print --driver sim --press 1,2           # no hardware needed`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			o.log = newLogger(zapcore.AddSync(cmd.ErrOrStderr()), o.verbose).Sugar()
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&o.driver, "driver", driverCdev, "pin back end: cdev, periph or sim")
	f.StringVar(&o.chip, "chip", gpio.DefaultChip, "gpio chip (cdev driver)")
	f.StringSliceVar(&o.rows, "rows", []string{"5", "6", "13", "19"}, "row pins, top to bottom")
	f.StringSliceVar(&o.cols, "cols", []string{"12", "16", "20"}, "column pins, left to right")
	f.StringVar(&o.name, "name", "keypad", "keypad name used in MQTT topics")
	f.DurationVar(&o.settle, "settle", keypad.DefaultSettle, "wait between driving a column and reading a row")
	f.BoolVar(&o.blocking, "blocking", false, "queue overlapping scans instead of rejecting them")
	f.StringArrayVar(&o.presses, "press", nil, `sim driver: hold key "row,col" (repeatable)`)
	f.BoolVarP(&o.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(newRunCmd(o), newPrintCmd(o))
	return root
}

// newLogger writes console-encoded logs to w at info level, or debug when verbose.
func newLogger(w zapcore.WriteSyncer, verbose bool) *zap.Logger {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(ec), w, level))
}

func (o *options) matrixOptions() []keypad.Option {
	opts := []keypad.Option{keypad.WithSettle(o.settle)}
	if o.blocking {
		opts = append(opts, keypad.WithBlockingScans())
	}
	return opts
}
