package bridge

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/zenibako/spacemap-qlab/messages"
)

// ConsoleControl is the slice of console operations the orchestrator
// sequences. *Console implements it.
type ConsoleControl interface {
	CreateCue(cueType, parentID string) (string, error)
	SetProperty(uniqueID, property string, value any) error
	MoveCue(uniqueID string, index int, parentID string) error
	SelectCue(uniqueID string) error
	FetchProperty(uniqueID, property string) (string, error)
	Children(uniqueID string) ([]CueDescriptor, error)
}

// PositionSource yields current object positions. *Device implements it.
type PositionSource interface {
	QueryPosition(mapping, object int) (x, y float64, err error)
}

// Orchestrator sequences the scene create and update workflows over the
// console, the device and the position cache.
type Orchestrator struct {
	console   ConsoleControl
	device    PositionSource
	cache     *PositionCache
	cfg       Config
	collapser Collapser
}

// NewOrchestrator wires the workflows. collapser may be nil; the
// collapse step is then skipped.
func NewOrchestrator(console ConsoleControl, device PositionSource, cache *PositionCache, cfg Config, collapser Collapser) *Orchestrator {
	return &Orchestrator{
		console:   console,
		device:    device,
		cache:     cache,
		cfg:       cfg,
		collapser: collapser,
	}
}

// CreateScene captures the device's current positions on the given
// mapping (0 selects the configured default) as a console group with one
// network cue per tracked object. The initial position refresh is
// all-or-nothing; per-object cue building tolerates partial failure.
// Returns the unique id of the created group.
func (o *Orchestrator) CreateScene(mapping int) (string, error) {
	if mapping == 0 {
		mapping = o.cfg.DefaultMapping
	}
	if !messages.ValidMapping(mapping) {
		return "", fmt.Errorf("mapping %d: %w", mapping, ErrOutOfRange)
	}

	objects := o.cache.List()
	if len(objects) == 0 {
		return "", fmt.Errorf("no tracked objects: %w", ErrNotFound)
	}
	log.Info("capturing scene", "mapping", mapping, "objects", len(objects))

	if err := o.refreshAll(mapping, objects); err != nil {
		return "", fmt.Errorf("scene aborted, position refresh failed: %w", err)
	}

	groupID, err := o.console.CreateCue("group", "")
	if err != nil {
		return "", fmt.Errorf("create scene group: %w", err)
	}
	if err := o.console.SetProperty(groupID, messages.PropName, messages.SceneLabel(mapping)); err != nil {
		return "", fmt.Errorf("label scene group: %w", err)
	}

	// Refresh already ran, so the cache carries current positions.
	objects = o.cache.List()

	var wg sync.WaitGroup
	for i, obj := range objects {
		wg.Add(1)
		go func(index int, obj TrackedObject) {
			defer wg.Done()
			if err := o.buildLeaf(groupID, mapping, index, obj); err != nil {
				log.Errorf("object %d skipped: %v", obj.Number, err)
			}
		}(i, obj)
	}
	wg.Wait()

	if err := o.console.SelectCue(groupID); err != nil {
		log.Warnf("select scene group: %v", err)
	}
	if o.collapser != nil {
		// Best-effort side channel; failure is never fatal.
		if err := o.collapser.Collapse(groupID); err != nil {
			log.Warnf("collapse scene group: %v", err)
		}
	}

	log.Info("scene captured", "group_id", groupID, "mapping", mapping)
	return groupID, nil
}

// refreshAll issues one polling position wait per object, concurrently,
// and applies the results to the cache. Any failure fails the whole
// refresh; every wait still runs to settlement.
func (o *Orchestrator) refreshAll(mapping int, objects []TrackedObject) error {
	var wg sync.WaitGroup
	errs := make([]error, len(objects))

	for i, obj := range objects {
		wg.Add(1)
		go func(i int, number int) {
			defer wg.Done()
			x, y, err := o.device.QueryPosition(mapping, number)
			if err != nil {
				errs[i] = fmt.Errorf("object %d: %w", number, err)
				return
			}
			if err := o.cache.ApplyPosition(number, &x, &y); err != nil {
				errs[i] = err
			}
		}(i, obj.Number)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// buildLeaf creates and configures one network cue inside the group. The
// create must complete first since every later step needs the id; the
// configuration sends are fire-and-forget.
func (o *Orchestrator) buildLeaf(groupID string, mapping, index int, obj TrackedObject) error {
	cueID, err := o.console.CreateCue("network", groupID)
	if err != nil {
		return err
	}

	steps := []struct {
		property string
		value    any
	}{
		{messages.PropPatch, int32(o.cfg.NetworkPatch)},
		{messages.PropMessageType, int32(messages.NetworkMessageTypeOSC)},
		{messages.PropCustomString, messages.CommandString(mapping, obj.Number, obj.X, obj.Y)},
		{messages.PropName, messages.CueLabel(obj.Number, obj.DisplayName, obj.X, obj.Y)},
		{messages.PropDuration, o.cfg.CueDuration},
	}
	for _, step := range steps {
		if err := o.console.SetProperty(cueID, step.property, step.value); err != nil {
			return fmt.Errorf("configure %s: %w", step.property, err)
		}
	}

	if err := o.console.MoveCue(cueID, index, groupID); err != nil {
		return fmt.Errorf("move into group: %w", err)
	}
	log.Debugf("built cue %s for object %d", cueID, obj.Number)
	return nil
}

// UpdateScenes refreshes every scene cue in the given selection to the
// device's current positions. Groups carrying the scene label prefix are
// expanded one level; network cues are updated directly; anything else
// is ignored. Per-leaf failures are logged and isolated, so the call
// always completes. Returns how many leaves were updated and how many
// failed.
func (o *Orchestrator) UpdateScenes(selection []CueDescriptor) (updated, failed int) {
	for _, item := range selection {
		switch item.Type {
		case messages.CueTypeGroup:
			if !strings.HasPrefix(item.Name, messages.SceneLabelPrefix) {
				log.Debugf("ignoring group %q without scene label", item.Name)
				continue
			}
			children, err := o.console.Children(item.UniqueID)
			if err != nil {
				log.Errorf("children of group %s: %v", item.UniqueID, err)
				failed++
				continue
			}
			for _, child := range children {
				if child.Type != messages.CueTypeNetwork {
					continue
				}
				if err := o.updateLeaf(child); err != nil {
					log.Errorf("cue %s not updated: %v", child.UniqueID, err)
					failed++
					continue
				}
				updated++
			}
		case messages.CueTypeNetwork:
			if err := o.updateLeaf(item); err != nil {
				log.Errorf("cue %s not updated: %v", item.UniqueID, err)
				failed++
				continue
			}
			updated++
		default:
			log.Debugf("ignoring selected %s cue %s", item.Type, item.UniqueID)
		}
	}

	log.Info("scene update finished", "updated", updated, "failed", failed)
	return updated, failed
}

// updateLeaf re-reads one network cue's command string, fetches a fresh
// position for the object it encodes and overwrites the command string
// and label with the creation encodings.
func (o *Orchestrator) updateLeaf(cue CueDescriptor) error {
	custom, err := o.console.FetchProperty(cue.UniqueID, messages.PropCustomString)
	if err != nil {
		return err
	}

	mapping, object, ok := messages.ParseCommandString(custom)
	if !ok {
		return fmt.Errorf("%w: custom string %q does not match the coordinate grammar",
			ErrInvalidFormat, custom)
	}

	x, y, err := o.device.QueryPosition(mapping, object)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("Object %d", object)
	if tracked, err := o.cache.Lookup(object); err == nil {
		name = tracked.DisplayName
		_ = o.cache.ApplyPosition(object, &x, &y)
	}

	if err := o.console.SetProperty(cue.UniqueID, messages.PropCustomString,
		messages.CommandString(mapping, object, x, y)); err != nil {
		return err
	}
	if err := o.console.SetProperty(cue.UniqueID, messages.PropName,
		messages.CueLabel(object, name, x, y)); err != nil {
		return err
	}
	return nil
}
