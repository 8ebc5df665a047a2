package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/tbox"
	"github.com/loykin/tbox/internal/codec"
	"github.com/loykin/tbox/internal/fsutil"
	"github.com/loykin/tbox/internal/kvstore"
)

const defaultHeartbeat = 10 * time.Second

// agentConfig is the "agent" section of the profile file.
type agentConfig struct {
	Heartbeat time.Duration `mapstructure:"heartbeat"`
	// RunFor stops the agent after the given duration; zero runs until signalled.
	RunFor    time.Duration   `mapstructure:"run_for"`
	Provision provisionConfig `mapstructure:"provision"`
}

// provisionConfig holds identity values written to the store when absent.
// With Encrypted set each value is base64 AES-128-CBC ciphertext.
type provisionConfig struct {
	VIN             string `mapstructure:"vin"`
	ICCID           string `mapstructure:"iccid"`
	BatteryPackCode string `mapstructure:"battery_pack_code"`
	Encrypted       bool   `mapstructure:"encrypted"`
	KeyHex          string `mapstructure:"key_hex"`
	IVHex           string `mapstructure:"iv_hex"`
}

func (p provisionConfig) values() map[kvstore.Key]string {
	return map[kvstore.Key]string{
		kvstore.KeyVIN:             p.VIN,
		kvstore.KeyICCID:           p.ICCID,
		kvstore.KeyBatteryPackCode: p.BatteryPackCode,
	}
}

func (p provisionConfig) decode(v string) (string, error) {
	if !p.Encrypted {
		return v, nil
	}
	key, err := codec.HexToBytes(p.KeyHex)
	if err != nil {
		return "", fmt.Errorf("key_hex: %w", err)
	}
	iv, err := codec.HexToBytes(p.IVHex)
	if err != nil {
		return "", fmt.Errorf("iv_hex: %w", err)
	}
	plain, err := codec.AESDecrypt([]byte(codec.Base64Decode(v)), key, iv)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// agent is the reference telematics agent run by "tboxd run".
type agent struct {
	cfg  agentConfig
	stop *time.Timer
}

func (a *agent) Initialize(ctx context.Context, rt *tbox.Runtime) error {
	if err := rt.Values().UnmarshalKey("agent", &a.cfg); err != nil {
		return fmt.Errorf("agent config: %w", err)
	}
	if a.cfg.Heartbeat <= 0 {
		a.cfg.Heartbeat = defaultHeartbeat
	}
	if rt.Store == nil {
		return errors.New("agent requires a store")
	}

	provision := a.cfg.Provision.values()
	for _, k := range kvstore.Keys() {
		raw := provision[k]
		if raw == "" {
			continue
		}
		if _, ok, err := rt.Store.Read(ctx, k); err != nil {
			return fmt.Errorf("read %s: %w", k, err)
		} else if ok {
			continue
		}
		v, err := a.cfg.Provision.decode(raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		if err := rt.Store.Write(ctx, k, v); err != nil {
			return fmt.Errorf("write %s: %w", k, err)
		}
		rt.Logger.Info("provisioned identity value", "key", k.String())
	}

	vin, _, err := rt.Store.Read(ctx, kvstore.KeyVIN)
	if err != nil {
		return fmt.Errorf("read vin: %w", err)
	}
	if a.cfg.RunFor > 0 {
		a.stop = time.AfterFunc(a.cfg.RunFor, rt.RequestShutdown)
	}
	rt.Logger.Info("agent initialized", "vin", vin, "heartbeat", a.cfg.Heartbeat)
	return nil
}

func (a *agent) Execute(ctx context.Context, rt *tbox.Runtime) int {
	ticker := time.NewTicker(a.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return tbox.ExitOK
		case now := <-ticker.C:
			rt.Logger.Debug("heartbeat", "date", fsutil.CurrentDate(now))
		}
	}
}

func (a *agent) Cleanup(ctx context.Context, rt *tbox.Runtime) error {
	if a.stop != nil {
		a.stop.Stop()
	}
	rt.Logger.Info("agent stopped")
	return nil
}
