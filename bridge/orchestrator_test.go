package bridge

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenibako/spacemap-qlab/messages"
)

type propertyWrite struct {
	cueID    string
	property string
	value    any
}

type cueMove struct {
	cueID    string
	index    int
	parentID string
}

// fakeConsole records every console operation. Safe for the concurrent
// cue fan-out.
type fakeConsole struct {
	mu         sync.Mutex
	nextID     int
	creates    []string
	writes     []propertyWrite
	moves      []cueMove
	selected   []string
	properties map[string]string          // cueID/property -> value
	children   map[string][]CueDescriptor // groupID -> children
	failCreate bool
	failSet    map[string]bool // property name -> fail
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{
		properties: make(map[string]string),
		children:   make(map[string][]CueDescriptor),
		failSet:    make(map[string]bool),
	}
}

func (f *fakeConsole) CreateCue(cueType, parentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return "", errors.New("create refused")
	}
	f.nextID++
	id := fmt.Sprintf("CUE-%d", f.nextID)
	f.creates = append(f.creates, cueType+"@"+parentID)
	return id, nil
}

func (f *fakeConsole) SetProperty(uniqueID, property string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet[property] {
		return errors.New("set refused")
	}
	f.writes = append(f.writes, propertyWrite{uniqueID, property, value})
	if s, ok := value.(string); ok {
		f.properties[uniqueID+"/"+property] = s
	}
	return nil
}

func (f *fakeConsole) MoveCue(uniqueID string, index int, parentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, cueMove{uniqueID, index, parentID})
	return nil
}

func (f *fakeConsole) SelectCue(uniqueID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, uniqueID)
	return nil
}

func (f *fakeConsole) FetchProperty(uniqueID, property string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.properties[uniqueID+"/"+property]
	if !ok {
		return "", fmt.Errorf("no %s on %s", property, uniqueID)
	}
	return v, nil
}

func (f *fakeConsole) Children(uniqueID string) ([]CueDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kids, ok := f.children[uniqueID]
	if !ok {
		return nil, fmt.Errorf("no group %s", uniqueID)
	}
	return kids, nil
}

func (f *fakeConsole) writesFor(cueID string) []propertyWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []propertyWrite
	for _, w := range f.writes {
		if w.cueID == cueID {
			out = append(out, w)
		}
	}
	return out
}

// fakeDevice serves positions keyed by mapping and object, counting
// queries. Objects listed in fail always error.
type fakeDevice struct {
	mu        sync.Mutex
	positions map[string][2]float64
	queries   int
	fail      map[int]error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		positions: make(map[string][2]float64),
		fail:      make(map[int]error),
	}
}

func (f *fakeDevice) set(mapping, object int, x, y float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[fmt.Sprintf("%d/%d", mapping, object)] = [2]float64{x, y}
}

func (f *fakeDevice) QueryPosition(mapping, object int) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if err, ok := f.fail[object]; ok {
		return 0, 0, err
	}
	pos, ok := f.positions[fmt.Sprintf("%d/%d", mapping, object)]
	if !ok {
		return 0, 0, fmt.Errorf("object %d: %w", object, ErrTimeout)
	}
	return pos[0], pos[1], nil
}

func (f *fakeDevice) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

// recordingCollapser remembers collapse calls and can fail.
type recordingCollapser struct {
	calls []string
	err   error
}

func (r *recordingCollapser) Collapse(uniqueID string) error {
	r.calls = append(r.calls, uniqueID)
	return r.err
}

func newTestOrchestrator(console *fakeConsole, device *fakeDevice, cache *PositionCache, collapser Collapser) *Orchestrator {
	cfg := DefaultConfig()
	return NewOrchestrator(console, device, cache, cfg, collapser)
}

func TestCreateSceneSingleObject(t *testing.T) {
	console := newFakeConsole()
	device := newFakeDevice()
	device.set(1, 1, 0.5, 0.25)
	cache := NewPositionCache()
	require.NoError(t, cache.Add(1, "Homer"))
	collapser := &recordingCollapser{}

	o := newTestOrchestrator(console, device, cache, collapser)
	groupID, err := o.CreateScene(1)
	require.NoError(t, err)
	assert.Equal(t, "CUE-1", groupID)

	// Exactly one position query for the single tracked object.
	assert.Equal(t, 1, device.queryCount())

	// One group create, one leaf create inside it.
	require.Equal(t, []string{"group@", "network@CUE-1"}, console.creates)

	// Group labeled with the scene marker.
	groupWrites := console.writesFor("CUE-1")
	require.Len(t, groupWrites, 1)
	assert.Equal(t, messages.PropName, groupWrites[0].property)
	assert.Equal(t, "Spacemap Scene (mapping 1)", groupWrites[0].value)

	// Five configuration sends, in order, on the leaf.
	leafWrites := console.writesFor("CUE-2")
	require.Len(t, leafWrites, 5)
	assert.Equal(t, messages.PropPatch, leafWrites[0].property)
	assert.Equal(t, int32(DefaultConfig().NetworkPatch), leafWrites[0].value)
	assert.Equal(t, messages.PropMessageType, leafWrites[1].property)
	assert.Equal(t, int32(messages.NetworkMessageTypeOSC), leafWrites[1].value)
	assert.Equal(t, messages.PropCustomString, leafWrites[2].property)
	assert.Equal(t, "/spacemap/xy/1/1 0.5 0.25", leafWrites[2].value)
	assert.Equal(t, messages.PropName, leafWrites[3].property)
	assert.Equal(t, "1 - Homer: 0.5, 0.25", leafWrites[3].value)
	assert.Equal(t, messages.PropDuration, leafWrites[4].property)

	// One move, into the group at position zero; then select and collapse.
	require.Equal(t, []cueMove{{"CUE-2", 0, "CUE-1"}}, console.moves)
	assert.Equal(t, []string{"CUE-1"}, console.selected)
	assert.Equal(t, []string{"CUE-1"}, collapser.calls)

	// The refresh landed in the cache.
	obj, err := cache.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, 0.5, obj.X)
	assert.Equal(t, 0.25, obj.Y)
}

func TestCreateSceneZeroMappingUsesDefault(t *testing.T) {
	console := newFakeConsole()
	device := newFakeDevice()
	cfg := DefaultConfig()
	device.set(cfg.DefaultMapping, 2, 0.1, 0.2)
	cache := NewPositionCache()
	require.NoError(t, cache.Add(2, "Marge"))

	o := NewOrchestrator(console, device, cache, cfg, nil)
	_, err := o.CreateScene(0)
	require.NoError(t, err)

	leafWrites := console.writesFor("CUE-2")
	require.Len(t, leafWrites, 5)
	assert.Equal(t, messages.CommandString(cfg.DefaultMapping, 2, 0.1, 0.2), leafWrites[2].value)
}

func TestCreateSceneRejectsInvalidMapping(t *testing.T) {
	o := newTestOrchestrator(newFakeConsole(), newFakeDevice(), NewPositionCache(), nil)
	_, err := o.CreateScene(5)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCreateSceneEmptyCache(t *testing.T) {
	o := newTestOrchestrator(newFakeConsole(), newFakeDevice(), NewPositionCache(), nil)
	_, err := o.CreateScene(1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateSceneAbortsWhenAnyRefreshFails(t *testing.T) {
	console := newFakeConsole()
	device := newFakeDevice()
	device.set(1, 1, 0.1, 0.1)
	// Object 2 never answers.
	cache := NewPositionCache()
	require.NoError(t, cache.Add(1, "Homer"))
	require.NoError(t, cache.Add(2, "Marge"))

	o := newTestOrchestrator(console, device, cache, nil)
	_, err := o.CreateScene(1)
	require.ErrorIs(t, err, ErrTimeout)

	// No console traffic at all: the whole scene is abandoned.
	assert.Empty(t, console.creates)
	assert.Empty(t, console.writes)
}

func TestCreateSceneToleratesLeafFailure(t *testing.T) {
	console := newFakeConsole()
	console.failSet[messages.PropDuration] = true
	device := newFakeDevice()
	device.set(1, 1, 0.1, 0.1)
	cache := NewPositionCache()
	require.NoError(t, cache.Add(1, "Homer"))

	o := newTestOrchestrator(console, device, cache, nil)
	groupID, err := o.CreateScene(1)
	require.NoError(t, err)
	assert.NotEmpty(t, groupID)
	assert.Equal(t, []string{groupID}, console.selected)
}

func TestCreateSceneCollapseFailureSwallowed(t *testing.T) {
	console := newFakeConsole()
	device := newFakeDevice()
	device.set(1, 1, 0.1, 0.1)
	cache := NewPositionCache()
	require.NoError(t, cache.Add(1, "Homer"))
	collapser := &recordingCollapser{err: errors.New("osascript missing")}

	o := newTestOrchestrator(console, device, cache, collapser)
	_, err := o.CreateScene(1)
	require.NoError(t, err)
	assert.Len(t, collapser.calls, 1)
}

func TestUpdateScenesGroupExpansion(t *testing.T) {
	console := newFakeConsole()
	device := newFakeDevice()
	device.set(1, 1, 0.7, 0.8)
	device.set(1, 2, 0.3, 0.4)
	cache := NewPositionCache()
	require.NoError(t, cache.Add(1, "Homer"))
	require.NoError(t, cache.Add(2, "Marge"))

	console.properties["LEAF-1/customString"] = "/spacemap/xy/1/1 0.5 0.25"
	console.properties["LEAF-2/customString"] = "/spacemap/xy/1/2 0.1 0.1"
	console.children["GROUP-1"] = []CueDescriptor{
		{UniqueID: "LEAF-1", Name: "1 - Homer: 0.5, 0.25", Type: messages.CueTypeNetwork},
		{UniqueID: "LEAF-2", Name: "2 - Marge: 0.1, 0.1", Type: messages.CueTypeNetwork},
		{UniqueID: "AUDIO-1", Name: "bed", Type: "Audio"},
	}

	o := newTestOrchestrator(console, device, cache, nil)
	updated, failed := o.UpdateScenes([]CueDescriptor{
		{UniqueID: "GROUP-1", Name: "Spacemap Scene (mapping 1)", Type: messages.CueTypeGroup},
	})
	assert.Equal(t, 2, updated)
	assert.Equal(t, 0, failed)

	assert.Equal(t, "/spacemap/xy/1/1 0.7 0.8", console.properties["LEAF-1/customString"])
	assert.Equal(t, "1 - Homer: 0.7, 0.8", console.properties["LEAF-1/name"])
	assert.Equal(t, "/spacemap/xy/1/2 0.3 0.4", console.properties["LEAF-2/customString"])
}

func TestUpdateScenesIgnoresUnlabeledGroup(t *testing.T) {
	console := newFakeConsole()
	o := newTestOrchestrator(console, newFakeDevice(), NewPositionCache(), nil)

	updated, failed := o.UpdateScenes([]CueDescriptor{
		{UniqueID: "GROUP-9", Name: "Act One", Type: messages.CueTypeGroup},
	})
	assert.Equal(t, 0, updated)
	assert.Equal(t, 0, failed)
	assert.Empty(t, console.writes)
}

func TestUpdateScenesDirectNetworkCue(t *testing.T) {
	console := newFakeConsole()
	device := newFakeDevice()
	device.set(2, 5, 0.6, 0.6)
	cache := NewPositionCache()

	console.properties["LEAF-5/customString"] = "/spacemap/xy/2/5 0 0"

	o := newTestOrchestrator(console, device, cache, nil)
	updated, failed := o.UpdateScenes([]CueDescriptor{
		{UniqueID: "LEAF-5", Name: "5 - something", Type: messages.CueTypeNetwork},
	})
	assert.Equal(t, 1, updated)
	assert.Equal(t, 0, failed)

	// Object 5 is untracked, so the label falls back to its number.
	assert.Equal(t, "5 - Object 5: 0.6, 0.6", console.properties["LEAF-5/name"])
}

func TestUpdateScenesIsolatesBadCustomString(t *testing.T) {
	console := newFakeConsole()
	device := newFakeDevice()
	device.set(1, 2, 0.3, 0.4)
	cache := NewPositionCache()
	require.NoError(t, cache.Add(2, "Marge"))

	console.properties["LEAF-1/customString"] = "/thump 1"
	console.properties["LEAF-2/customString"] = "/spacemap/xy/1/2 0.1 0.1"
	console.children["GROUP-1"] = []CueDescriptor{
		{UniqueID: "LEAF-1", Name: "tampered", Type: messages.CueTypeNetwork},
		{UniqueID: "LEAF-2", Name: "2 - Marge: 0.1, 0.1", Type: messages.CueTypeNetwork},
	}

	o := newTestOrchestrator(console, device, cache, nil)
	updated, failed := o.UpdateScenes([]CueDescriptor{
		{UniqueID: "GROUP-1", Name: "Spacemap Scene (mapping 1)", Type: messages.CueTypeGroup},
	})
	assert.Equal(t, 1, updated)
	assert.Equal(t, 1, failed)
	assert.Equal(t, "/spacemap/xy/1/2 0.3 0.4", console.properties["LEAF-2/customString"])
}

func TestUpdateScenesIgnoresOtherCueTypes(t *testing.T) {
	console := newFakeConsole()
	o := newTestOrchestrator(console, newFakeDevice(), NewPositionCache(), nil)

	updated, failed := o.UpdateScenes([]CueDescriptor{
		{UniqueID: "AUDIO-1", Name: "bed", Type: "Audio"},
	})
	assert.Equal(t, 0, updated)
	assert.Equal(t, 0, failed)
}
