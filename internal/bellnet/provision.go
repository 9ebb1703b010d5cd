package bellnet

import (
	"context"
	"time"

	"github.com/bellbot/bellbot-core/internal/device"
	"github.com/bellbot/bellbot-core/internal/infrastructure/logging"
	"github.com/bellbot/bellbot-core/internal/school"
	"github.com/bellbot/bellbot-core/internal/timetable"
)

// specialDayWindow is how far ahead special-day overrides are baked into a
// pushed timetable. Controllers hold one week of times, so pushing further
// ahead would be overwritten before it mattered.
const specialDayWindow = 7 * 24 * time.Hour

// ProvisionerDeps carries the provisioner's dependencies.
type ProvisionerDeps struct {
	Publisher *Publisher
	Devices   device.Repository
	Schools   school.Repository
	Schedules timetable.ScheduleRepository
	Presets   timetable.PresetRepository
	Specials  timetable.SpecialDayRepository
	Location  *time.Location
	Logger    *logging.Logger
}

// Provisioner compiles a school's publishable timetable and distributes it
// to controllers. The dispatcher uses it to answer sync requests; the API
// uses it for the publish endpoint and after timetable mutations.
type Provisioner struct {
	publisher *Publisher
	devices   device.Repository
	schools   school.Repository
	schedules timetable.ScheduleRepository
	presets   timetable.PresetRepository
	specials  timetable.SpecialDayRepository
	loc       *time.Location
	log       *logging.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// NewProvisioner creates a provisioner.
func NewProvisioner(deps ProvisionerDeps) *Provisioner {
	return &Provisioner{
		publisher: deps.Publisher,
		devices:   deps.Devices,
		schools:   deps.Schools,
		schedules: deps.Schedules,
		presets:   deps.Presets,
		specials:  deps.Specials,
		loc:       deps.Location,
		log:       deps.Logger.With("component", "provisioner"),
		now:       time.Now,
	}
}

// compile builds the publishable timetable for a school: weekly schedule +
// presets through the transformer, then the special-day overlay. The source
// weekly schedule comes back too; the push paths re-publish it in the
// verbose legacy format.
func (p *Provisioner) compile(ctx context.Context, schoolID string) (*timetable.DeviceTimetable, *timetable.WeeklySchedule, error) {
	sch, err := p.schools.Get(ctx, schoolID)
	if err != nil {
		return nil, nil, err
	}
	ws, err := p.schedules.GetBySchool(ctx, schoolID)
	if err != nil {
		return nil, nil, err
	}
	presetList, err := p.presets.ListBySchool(ctx, schoolID)
	if err != nil {
		return nil, nil, err
	}
	presetMap := make(map[string]timetable.Preset, len(presetList))
	for _, pr := range presetList {
		presetMap[pr.ID] = pr
	}

	dt := timetable.Transform(*ws, presetMap, sch.Name, ws.ID, ws.UpdatedAt)

	from := p.now().In(p.loc)
	specials, err := p.specials.ListUpcoming(ctx, schoolID, from, specialDayWindow)
	if err != nil {
		return nil, nil, err
	}
	timetable.OverlaySpecialDays(&dt, specials, from)

	for _, day := range dt.TruncatedDays {
		p.log.Warn("timetable day truncated to controller capacity",
			"school_id", schoolID, "day", day)
	}
	return &dt, ws, nil
}

// PushToDevice compiles the device's school timetable and pushes it to that
// controller, recording what it now runs and following with a time sync.
func (p *Provisioner) PushToDevice(ctx context.Context, dev *device.Device) (*timetable.DeviceTimetable, error) {
	dt, ws, err := p.compile(ctx, dev.SchoolID)
	if err != nil {
		return nil, err
	}
	if err := p.publisher.PushTimetable(dev.Serial, *dt); err != nil {
		return nil, err
	}
	p.pushLegacy(dev.Serial, ws)
	if err := p.devices.SetCurrentTimetable(ctx, dev.Serial, dt.ID); err != nil {
		p.log.Error("recording pushed timetable failed",
			"serial", dev.Serial, "error", err)
	}
	if err := p.publisher.PushTime(dev.Serial); err != nil {
		p.log.Error("time push after timetable failed",
			"serial", dev.Serial, "error", err)
	}
	return dt, nil
}

// pushLegacy re-publishes the schedule on the verbose retained legacy topic.
// Pre-bellctl firmware only listens there; for current firmware the message
// is ignored, so a failure is logged rather than surfaced.
func (p *Provisioner) pushLegacy(serial string, ws *timetable.WeeklySchedule) {
	if err := p.publisher.PushSchedule(serial, *ws); err != nil {
		p.log.Error("legacy schedule push failed", "serial", serial, "error", err)
	}
}

// PushToSchool compiles once and pushes to every controller registered to
// the school. Returns the compiled timetable and how many controllers it
// went to. A publish failure for one controller is logged and skipped so
// the rest still get the update.
func (p *Provisioner) PushToSchool(ctx context.Context, schoolID string) (*timetable.DeviceTimetable, int, error) {
	dt, ws, err := p.compile(ctx, schoolID)
	if err != nil {
		return nil, 0, err
	}

	devices, err := p.devices.ListBySchool(ctx, schoolID)
	if err != nil {
		return nil, 0, err
	}

	pushed := 0
	for i := range devices {
		dev := &devices[i]
		if err := p.publisher.PushTimetable(dev.Serial, *dt); err != nil {
			p.log.Error("timetable push failed", "serial", dev.Serial, "error", err)
			continue
		}
		p.pushLegacy(dev.Serial, ws)
		if err := p.devices.SetCurrentTimetable(ctx, dev.Serial, dt.ID); err != nil {
			p.log.Error("recording pushed timetable failed",
				"serial", dev.Serial, "error", err)
		}
		if err := p.publisher.PushTime(dev.Serial); err != nil {
			p.log.Error("time push after timetable failed",
				"serial", dev.Serial, "error", err)
		}
		pushed++
	}

	p.log.Info("timetable published to school",
		"school_id", schoolID, "timetable_id", dt.ID, "devices", pushed)
	return dt, pushed, nil
}
