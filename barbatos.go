// Package barbatos is the LED mode daemon for the MG Barbatos model kit. It
// drives the body LEDs and the RGB thruster through a PWM controller and
// serves a control page for switching lighting modes.
package barbatos

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"libdb.so/barbatos/internal/controller"
	"libdb.so/barbatos/internal/led"
	"libdb.so/barbatos/internal/pca9685"
	"libdb.so/barbatos/internal/remote"
	"libdb.so/barbatos/internal/serialsink"
)

// shutdownTimeout bounds how long in-flight control requests may take once
// the daemon is stopping.
const shutdownTimeout = 5 * time.Second

// Daemon is the main barbatos daemon.
type Daemon struct {
	cfg    *Config
	logger *slog.Logger

	// listening, if set, receives the control page address once it is bound.
	listening chan<- net.Addr
}

// NewDaemon creates a new barbatos daemon.
func NewDaemon(cfg *Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &Daemon{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run starts the daemon. It always boots into startup mode and blocks until
// the given context is canceled or the PWM sink fails.
func (d *Daemon) Run(ctx context.Context) error {
	sink, closer, err := d.openSink()
	if err != nil {
		return err
	}
	defer func() {
		d.logger.Debug("closing pwm sink")
		if err := closer.Close(); err != nil {
			d.logger.Warn("failed to close pwm sink", "error", err)
		}
	}()

	shadow := led.NewShadow(sink)

	ctrl := controller.New(controller.Options{
		Sink:          shadow,
		Logger:        d.logger.With("component", "controller"),
		ColorDuration: time.Duration(d.cfg.Thruster.ColorDuration),
	})

	ln, err := net.Listen("tcp", d.cfg.Listen)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	server := &http.Server{
		Handler:           remote.NewHandler(ctrl, shadow, d.cfg.Title, d.logger.With("component", "remote")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.logger.Info("serving control page", "addr", ln.Addr())
	if d.listening != nil {
		d.listening <- ln.Addr()
	}

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		return ctrl.Run(ctx)
	})
	errg.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "control server failed")
		}
		return nil
	})
	errg.Go(func() error {
		<-ctx.Done()
		d.logger.Debug("shutting down control server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "failed to shut down control server")
		}
		return ctx.Err()
	})

	return errg.Wait()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (d *Daemon) openSink() (led.Sink, io.Closer, error) {
	mapping, err := d.cfg.Mapping()
	if err != nil {
		return nil, nil, err
	}

	pwm := d.cfg.PWM
	logger := d.logger.With("component", "pwm", "driver", pwm.Driver)

	switch pwm.Driver {
	case PCA9685Driver:
		logger.Debug("opening pca9685", "device", pwm.I2CDevice, "address", pwm.Address)
		dev, err := pca9685.Open(pwm.I2CDevice, pwm.Address, pwm.Frequency, mapping)
		if err != nil {
			return nil, nil, err
		}
		return dev, dev, nil

	case SerialDriver:
		logger.Debug("opening serial bridge", "device", pwm.SerialDevice, "baud", pwm.Baud)
		s, err := serialsink.Open(pwm.SerialDevice, pwm.Baud, pwm.Frequency, mapping, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case NoopDriver:
		logger.Warn("no pwm hardware configured, writes are only logged")
		return led.Noop{Logger: logger}, nopCloser{}, nil

	default:
		return nil, nil, errors.Errorf("unknown pwm driver %q", pwm.Driver)
	}
}
