package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ModemConfig describes how to power and dial the cellular modem
type ModemConfig struct {
	DialCmd        string
	HangupCmd      string
	PwrKeyPin      string // pulsed to toggle the modem on/off; empty when always on
	PowerPin       string // supply switch; empty when not switchable
	ProbeURL       string
	ConnectTimeout time.Duration
}

// CommandRunner runs a shell command line
type CommandRunner func(ctx context.Context, cmdline string) error

// ShellRunner runs cmdline through /bin/sh
func ShellRunner(ctx context.Context, cmdline string) error {
	out, err := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", cmdline, err, out)
	}
	return nil
}

// ModemService brings the cellular data link up and down around network phases
type ModemService struct {
	cfg        ModemConfig
	run        CommandRunner
	httpClient *http.Client
	logger     *zap.Logger

	gpioOnce sync.Once
	gpioErr  error
	pwrKey   gpio.PinOut
	power    gpio.PinOut
}

// NewModemService creates a new modem service; run may be nil for the shell
func NewModemService(cfg ModemConfig, run CommandRunner, logger *zap.Logger) *ModemService {
	if run == nil {
		run = ShellRunner
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 60 * time.Second
	}
	return &ModemService{
		cfg: cfg,
		run: run,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (m *ModemService) initGPIO() error {
	m.gpioOnce.Do(func() {
		if m.cfg.PwrKeyPin == "" && m.cfg.PowerPin == "" {
			return
		}
		if _, err := host.Init(); err != nil {
			m.gpioErr = fmt.Errorf("periph host init: %w", err)
			return
		}
		if m.cfg.PwrKeyPin != "" {
			if m.pwrKey = gpioreg.ByName(m.cfg.PwrKeyPin); m.pwrKey == nil {
				m.gpioErr = fmt.Errorf("unknown gpio %q", m.cfg.PwrKeyPin)
				return
			}
		}
		if m.cfg.PowerPin != "" {
			if m.power = gpioreg.ByName(m.cfg.PowerPin); m.power == nil {
				m.gpioErr = fmt.Errorf("unknown gpio %q", m.cfg.PowerPin)
			}
		}
	})
	return m.gpioErr
}

func (m *ModemService) pulsePwrKey() error {
	if m.pwrKey == nil {
		return nil
	}
	if err := m.pwrKey.Out(gpio.High); err != nil {
		return err
	}
	time.Sleep(time.Second)
	return m.pwrKey.Out(gpio.Low)
}

// BringUp powers the modem, dials the data link and waits until the probe URL answers
func (m *ModemService) BringUp(ctx context.Context) error {
	m.logger.Info("Bringing up network", zap.Duration("timeout", m.cfg.ConnectTimeout))

	if err := m.initGPIO(); err != nil {
		return fmt.Errorf("modem gpio: %w", err)
	}
	if m.power != nil {
		if err := m.power.Out(gpio.High); err != nil {
			return fmt.Errorf("modem power on: %w", err)
		}
	}
	if err := m.pulsePwrKey(); err != nil {
		return fmt.Errorf("modem pwrkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	if m.cfg.DialCmd != "" {
		if err := m.run(ctx, m.cfg.DialCmd); err != nil {
			return fmt.Errorf("dial: %w", err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // bounded by ctx
	err := backoff.Retry(func() error {
		return m.probe(ctx)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("network not reachable within %s: %w", m.cfg.ConnectTimeout, err)
	}

	m.logger.Info("Network is up")
	return nil
}

// TearDown hangs up the data link and switches the modem off
func (m *ModemService) TearDown(ctx context.Context) error {
	var errs []error
	if m.cfg.HangupCmd != "" {
		if err := m.run(ctx, m.cfg.HangupCmd); err != nil {
			errs = append(errs, fmt.Errorf("hangup: %w", err))
		}
	}
	if err := m.PowerOff(); err != nil {
		errs = append(errs, err)
	}
	m.logger.Info("Network torn down")
	return errors.Join(errs...)
}

// PowerOff cuts the modem without hanging up first
func (m *ModemService) PowerOff() error {
	if err := m.initGPIO(); err != nil {
		return fmt.Errorf("modem gpio: %w", err)
	}
	if err := m.pulsePwrKey(); err != nil {
		return fmt.Errorf("modem pwrkey: %w", err)
	}
	if m.power != nil {
		if err := m.power.Out(gpio.Low); err != nil {
			return fmt.Errorf("modem power off: %w", err)
		}
	}
	return nil
}

// CurrentTime reads network time from the probe server's Date header
func (m *ModemService) CurrentTime(ctx context.Context) (time.Time, error) {
	resp, err := m.head(ctx)
	if err != nil {
		return time.Time{}, err
	}
	date := resp.Header.Get("Date")
	if date == "" {
		return time.Time{}, errors.New("probe response has no Date header")
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse Date header: %w", err)
	}
	return t, nil
}

// probe succeeds on any HTTP answer; only transport errors mean "not yet"
func (m *ModemService) probe(ctx context.Context) error {
	_, err := m.head(ctx)
	return err
}

func (m *ModemService) head(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.cfg.ProbeURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("probe request: %w", err))
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}
