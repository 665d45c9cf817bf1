package eg4

import (
	"context"
	"log/slog"

	"github.com/eg4monitor/eg4monitor/pkg/log"
	"github.com/eg4monitor/eg4monitor/pkg/types"
)

// GetInverterRuntime returns the selected inverter's live telemetry. If the
// monitor reports a failure for the device the result has Success false and
// ErrorMessage set, and err is nil.
func (c *Client) GetInverterRuntime(ctx context.Context) (types.RuntimeData, error) {
	var rd types.RuntimeData
	env, err := c.readInverter(ctx, inverterRuntimePath, &rd)
	if err != nil {
		return types.RuntimeData{}, err
	}
	if !env.Success {
		return types.RuntimeData{Success: false, ErrorMessage: env.Reason()}, nil
	}

	log.Ctx(ctx).DebugContext(ctx, "eg4 runtime data",
		slog.String("serialNum", rd.SerialNumber),
		slog.String("status", rd.StatusText),
		slog.Int("pvW", rd.PVPower),
		slog.Int("soc", rd.SOC),
		slog.Int("toGridW", rd.PowerToGrid),
		slog.Int("toUserW", rd.PowerToUser),
		slog.Int("consumptionW", rd.ConsumptionPower),
	)
	return rd, nil
}

// GetInverterEnergy returns the selected inverter's daily and lifetime energy
// counters.
func (c *Client) GetInverterEnergy(ctx context.Context) (types.EnergyData, error) {
	var ed types.EnergyData
	env, err := c.readInverter(ctx, inverterEnergyPath, &ed)
	if err != nil {
		return types.EnergyData{}, err
	}
	if !env.Success {
		return types.EnergyData{Success: false, ErrorMessage: env.Reason()}, nil
	}

	log.Ctx(ctx).DebugContext(ctx, "eg4 energy data",
		slog.String("serialNum", ed.SerialNumber),
		slog.Float64("todayYieldKWH", types.KWh(ed.TodayYielding)),
		slog.Float64("todayImportKWH", types.KWh(ed.TodayImport)),
		slog.Float64("todayExportKWH", types.KWh(ed.TodayExport)),
		slog.Float64("totalYieldKWH", types.KWh(ed.TotalYielding)),
	)
	return ed, nil
}

// GetInverterBattery returns the battery bank attached to the selected
// inverter, including each module the BMS reports.
func (c *Client) GetInverterBattery(ctx context.Context) (types.BatteryData, error) {
	var bd types.BatteryData
	env, err := c.readInverter(ctx, inverterBatteryPath, &bd)
	if err != nil {
		return types.BatteryData{}, err
	}
	if !env.Success {
		return types.BatteryData{Success: false, ErrorMessage: env.Reason()}, nil
	}

	attrs := []any{
		slog.Int("units", len(bd.BatteryUnits)),
		slog.String("voltage", bd.TotalVoltageText),
		slog.String("current", bd.CurrentText),
	}
	if bd.RemainCapacity != nil {
		attrs = append(attrs, slog.Int("remainCapacityAh", *bd.RemainCapacity))
	} else {
		log.Ctx(ctx).WarnContext(ctx, "eg4 battery response missing remainCapacity")
	}
	log.Ctx(ctx).DebugContext(ctx, "eg4 battery data", attrs...)
	return bd, nil
}
