package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eg4monitor/eg4monitor/pkg/eg4"
	"github.com/eg4monitor/eg4monitor/pkg/log"
	"github.com/eg4monitor/eg4monitor/pkg/types"

	_ "github.com/joho/godotenv/autoload"
	"github.com/levenlabs/go-lflag"
)

func main() {
	cfg := eg4.Configured()

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.LevelFromLLog()
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *cfg); err != nil {
		var authErr *eg4.AuthError
		var apiErr *eg4.APIError
		switch {
		case errors.As(err, &authErr):
			log.Ctx(ctx).ErrorContext(ctx, "authentication error", slog.Any("error", err))
		case errors.As(err, &apiErr):
			log.Ctx(ctx).ErrorContext(ctx, "api error", slog.Any("error", err))
		default:
			log.Ctx(ctx).ErrorContext(ctx, "unexpected error", slog.Any("error", err))
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg eg4.Config) error {
	client, err := eg4.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to close client", slog.Any("error", err))
		}
	}()

	if err := client.Login(ctx); err != nil {
		return err
	}

	for i, inv := range client.Inverters() {
		log.Ctx(ctx).InfoContext(ctx, "inverter",
			slog.Int("index", i),
			slog.String("serialNum", inv.SerialNumber),
			slog.String("alias", inv.Alias),
			slog.String("plantId", inv.PlantID),
			slog.String("plantName", inv.PlantName),
			slog.String("type", inv.DeviceTypeText),
		)
	}

	sel := client.Selection()
	ctx = log.WithAttrs(ctx, slog.String("serialNum", sel.SerialNumber))

	rd, err := client.GetInverterRuntime(ctx)
	if err != nil {
		return err
	}
	logRuntime(ctx, rd)

	ed, err := client.GetInverterEnergy(ctx)
	if err != nil {
		return err
	}
	logEnergy(ctx, ed)

	bd, err := client.GetInverterBattery(ctx)
	if err != nil {
		return err
	}
	logBattery(ctx, bd)

	return nil
}

func logRuntime(ctx context.Context, rd types.RuntimeData) {
	if !rd.Success {
		log.Ctx(ctx).WarnContext(ctx, "runtime not available", slog.String("message", rd.ErrorMessage))
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "runtime",
		slog.String("status", rd.StatusText),
		slog.Int("pvPower", rd.PVPower),
		slog.Int("soc", rd.SOC),
		slog.Int("toGrid", rd.PowerToGrid),
		slog.Int("fromGrid", rd.PowerToUser),
		slog.Int("consumption", rd.ConsumptionPower),
		slog.String("deviceTime", rd.DeviceTime),
	)
}

func logEnergy(ctx context.Context, ed types.EnergyData) {
	if !ed.Success {
		log.Ctx(ctx).WarnContext(ctx, "energy not available", slog.String("message", ed.ErrorMessage))
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "energy",
		slog.Float64("todayYieldingKWh", types.KWh(ed.TodayYielding)),
		slog.Float64("todayImportKWh", types.KWh(ed.TodayImport)),
		slog.Float64("todayExportKWh", types.KWh(ed.TodayExport)),
		slog.Float64("todayUsageKWh", types.KWh(ed.TodayUsage)),
		slog.Float64("totalYieldingKWh", types.KWh(ed.TotalYielding)),
	)
}

func logBattery(ctx context.Context, bd types.BatteryData) {
	if !bd.Success {
		log.Ctx(ctx).WarnContext(ctx, "battery not available", slog.String("message", bd.ErrorMessage))
		return
	}
	attrs := []any{
		slog.Int("units", bd.TotalNumber),
		slog.String("voltage", bd.TotalVoltageText),
		slog.String("current", bd.CurrentText),
	}
	if bd.RemainCapacity != nil {
		attrs = append(attrs, slog.Int("remainCapacity", *bd.RemainCapacity))
	}
	if bd.FullCapacity != nil {
		attrs = append(attrs, slog.Int("fullCapacity", *bd.FullCapacity))
	}
	log.Ctx(ctx).InfoContext(ctx, "battery", attrs...)

	for _, u := range bd.BatteryUnits {
		log.Ctx(ctx).InfoContext(ctx, "battery unit",
			slog.String("key", u.BatteryKey),
			slog.String("serialNum", u.SerialNumber),
			slog.Int("soc", u.SOC),
			slog.Int("soh", u.SOH),
			slog.Int("cycles", u.CycleCount),
			slog.String("firmware", u.FirmwareVersion),
		)
	}
}
