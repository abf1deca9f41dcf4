package state

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/rackmesh/telemetry-core/internal/canonical"
)

// Difference thresholds for sensor diffing.
const (
	tempHumThreshold = 0.01
	noiseThreshold   = 1.0
)

// diff computes the annotated output record for one update and the
// payload to store as the key's new previous state. The cell lock is
// held by the caller; c.previous / c.prevTime are the key's state
// before this update.
func diff(c *cell, rec canonical.Record) (out canonical.Record, store any, err error) {
	switch rec.MessageKind {
	case canonical.MessageKindRfid:
		return diffRfid(c, rec)
	case canonical.MessageKindTempHum:
		return diffTempHum(c, rec)
	case canonical.MessageKindNoise:
		return diffNoise(c, rec)
	case canonical.MessageKindDoor:
		return diffDoor(c, rec)
	case canonical.MessageKindColor:
		return diffColor(c, rec)
	case canonical.MessageKindDeviceInfo, canonical.MessageKindModuleInfo:
		return diffWhole(c, rec)
	default:
		return rec, c.previous, ErrUntrackedKind
	}
}

// diffRfid classifies RFID tag transitions and filters the outgoing
// record down to only the positions that changed.
//
// Family-B frames are full snapshots of a module's tag inventory: a
// position absent from the frame means its tag is gone. Family-T frames
// are incremental (each entry is itself an attach or detach event), so
// the effective inventory is the previous one with the frame's events
// applied before diffing. The stored state is always the effective
// inventory, so the next diff sees accumulated Family-T events.
func diffRfid(c *cell, rec canonical.Record) (canonical.Record, any, error) {
	cur, ok := rec.Payload.(canonical.RfidPayload)
	if !ok {
		return rec, c.previous, fmt.Errorf("%w: Rfid record carries %T payload", ErrStateFailed, rec.Payload)
	}

	prevTags := map[int]canonical.RfidTag{}
	if c.previous != nil {
		prev, ok := c.previous.(canonical.RfidPayload)
		if !ok {
			return rec, c.previous, fmt.Errorf("%w: stored Rfid state is %T", ErrStateFailed, c.previous)
		}
		for _, t := range prev.RfidData {
			prevTags[t.Position] = t
		}
	}

	curTags := effectiveInventory(rec.DeviceKind, prevTags, cur.RfidData)

	changes := rfidChanges(prevTags, curTags, rec)

	// The outgoing payload carries one entry per change, nothing else.
	filtered := make([]canonical.RfidTag, 0, len(changes))
	for _, ch := range changes {
		tag, ok := curTags[ch.Position]
		if !ok {
			tag = prevTags[ch.Position] // detached: report the tag that left
		}
		tag.State = string(ch.Action)
		filtered = append(filtered, tag)
	}

	out := rec
	out.Payload = canonical.RfidPayload{
		UCount:    cur.UCount,
		RfidCount: len(filtered),
		RfidData:  filtered,
	}
	out = out.WithChanges(changes, nil, len(changes) > 0)

	inventory := make([]canonical.RfidTag, 0, len(curTags))
	for _, t := range curTags {
		t.State = string(canonical.ActionAttached)
		inventory = append(inventory, t)
	}
	sort.Slice(inventory, func(i, j int) bool { return inventory[i].Position < inventory[j].Position })
	store := canonical.RfidPayload{
		UCount:    cur.UCount,
		RfidCount: len(inventory),
		RfidData:  inventory,
	}

	return out, store, nil
}

// effectiveInventory computes the position->tag map the diff runs
// against. Family-B snapshots replace the inventory wholesale;
// Family-T events mutate the previous inventory one entry at a time.
func effectiveInventory(kind canonical.DeviceKind, prev map[int]canonical.RfidTag, data []canonical.RfidTag) map[int]canonical.RfidTag {
	if kind == canonical.DeviceKindT {
		out := make(map[int]canonical.RfidTag, len(prev))
		for pos, t := range prev {
			out[pos] = t
		}
		for _, t := range data {
			if t.State == string(canonical.ActionDetached) {
				delete(out, t.Position)
				continue
			}
			out[t.Position] = t
		}
		return out
	}

	out := make(map[int]canonical.RfidTag, len(data))
	for _, t := range data {
		out[t.Position] = t
	}
	return out
}

// rfidChanges diffs two inventories. Changes come out in ascending
// position order with at most one action per position.
func rfidChanges(prev, cur map[int]canonical.RfidTag, rec canonical.Record) []canonical.Change {
	positions := map[int]struct{}{}
	for pos := range prev {
		positions[pos] = struct{}{}
	}
	for pos := range cur {
		positions[pos] = struct{}{}
	}

	ordered := make([]int, 0, len(positions))
	for pos := range positions {
		ordered = append(ordered, pos)
	}
	sort.Ints(ordered)

	var changes []canonical.Change
	for _, pos := range ordered {
		p, inPrev := prev[pos]
		n, inCur := cur[pos]

		var action canonical.ChangeAction
		switch {
		case !inPrev && inCur:
			action = canonical.ActionAttached
		case inPrev && !inCur:
			action = canonical.ActionDetached
		case p.RFID != n.RFID:
			action = canonical.ActionChanged
		case p.Alarm != n.Alarm:
			action = canonical.ActionAlarmChanged
		default:
			continue
		}

		ch := canonical.Change{
			Position:  pos,
			Action:    action,
			Timestamp: rec.Timestamp,
		}
		if inPrev {
			ch.Previous = p
		}
		if inCur {
			ch.Current = n
		}
		changes = append(changes, ch)
	}
	return changes
}

// diffTempHum emits one updated event per position whose temperature or
// humidity drifted past the threshold; positions seen for the first
// time emit initialized.
func diffTempHum(c *cell, rec canonical.Record) (canonical.Record, any, error) {
	cur, ok := rec.Payload.([]canonical.TempHumEntry)
	if !ok {
		return rec, c.previous, fmt.Errorf("%w: TempHum record carries %T payload", ErrStateFailed, rec.Payload)
	}

	prevByPos := map[int]canonical.TempHumEntry{}
	if c.previous != nil {
		prev, ok := c.previous.([]canonical.TempHumEntry)
		if !ok {
			return rec, c.previous, fmt.Errorf("%w: stored TempHum state is %T", ErrStateFailed, c.previous)
		}
		for _, e := range prev {
			prevByPos[e.Position] = e
		}
	}

	var changes []canonical.Change
	for _, e := range cur {
		p, seen := prevByPos[e.Position]
		switch {
		case !seen:
			changes = append(changes, canonical.Change{
				Position:  e.Position,
				Action:    canonical.ActionInitialized,
				Current:   e,
				Timestamp: rec.Timestamp,
			})
		case exceeds(p.Temperature, e.Temperature, tempHumThreshold) ||
			exceeds(p.Humidity, e.Humidity, tempHumThreshold):
			changes = append(changes, canonical.Change{
				Position:  e.Position,
				Action:    canonical.ActionUpdated,
				Previous:  p,
				Current:   e,
				Timestamp: rec.Timestamp,
			})
		}
	}

	return rec.WithChanges(changes, c.previous, len(changes) > 0), cur, nil
}

// diffNoise emits one updated event per position whose level moved by
// more than the noise threshold.
func diffNoise(c *cell, rec canonical.Record) (canonical.Record, any, error) {
	cur, ok := rec.Payload.([]canonical.NoiseEntry)
	if !ok {
		return rec, c.previous, fmt.Errorf("%w: Noise record carries %T payload", ErrStateFailed, rec.Payload)
	}

	prevByPos := map[int]canonical.NoiseEntry{}
	if c.previous != nil {
		prev, ok := c.previous.([]canonical.NoiseEntry)
		if !ok {
			return rec, c.previous, fmt.Errorf("%w: stored Noise state is %T", ErrStateFailed, c.previous)
		}
		for _, e := range prev {
			prevByPos[e.Position] = e
		}
	}

	var changes []canonical.Change
	for _, e := range cur {
		p, seen := prevByPos[e.Position]
		switch {
		case !seen:
			changes = append(changes, canonical.Change{
				Position:  e.Position,
				Action:    canonical.ActionInitialized,
				Current:   e,
				Timestamp: rec.Timestamp,
			})
		case exceeds(p.Level, e.Level, noiseThreshold):
			changes = append(changes, canonical.Change{
				Position:  e.Position,
				Action:    canonical.ActionUpdated,
				Previous:  p,
				Current:   e,
				Timestamp: rec.Timestamp,
			})
		}
	}

	return rec.WithChanges(changes, c.previous, len(changes) > 0), cur, nil
}

// diffDoor emits set on first sight and changed on a status transition,
// annotating the payload with the seconds the door spent in its
// previous state.
func diffDoor(c *cell, rec canonical.Record) (canonical.Record, any, error) {
	cur, ok := rec.Payload.(canonical.DoorPayload)
	if !ok {
		return rec, c.previous, fmt.Errorf("%w: Door record carries %T payload", ErrStateFailed, rec.Payload)
	}

	if c.previous == nil {
		change := canonical.Change{
			Action:    canonical.ActionSet,
			Current:   cur.Status,
			Timestamp: rec.Timestamp,
		}
		return rec.WithChanges([]canonical.Change{change}, nil, true), cur, nil
	}

	prev, ok := c.previous.(canonical.DoorPayload)
	if !ok {
		return rec, c.previous, fmt.Errorf("%w: stored Door state is %T", ErrStateFailed, c.previous)
	}

	if prev.Status == cur.Status {
		return rec.WithChanges(nil, c.previous, false), cur, nil
	}

	duration := rec.Timestamp.Sub(c.prevTime).Seconds()
	cur.Duration = &duration
	out := rec
	out.Payload = cur

	change := canonical.Change{
		Action:    canonical.ActionChanged,
		Previous:  prev.Status,
		Current:   cur.Status,
		Timestamp: rec.Timestamp,
	}
	return out.WithChanges([]canonical.Change{change}, c.previous, true), cur, nil
}

// diffColor emits set for newly seen positions and changed when a
// position's colour differs.
func diffColor(c *cell, rec canonical.Record) (canonical.Record, any, error) {
	cur, ok := rec.Payload.([]canonical.ColorEntry)
	if !ok {
		return rec, c.previous, fmt.Errorf("%w: Color record carries %T payload", ErrStateFailed, rec.Payload)
	}

	prevByPos := map[int]canonical.ColorEntry{}
	if c.previous != nil {
		prev, ok := c.previous.([]canonical.ColorEntry)
		if !ok {
			return rec, c.previous, fmt.Errorf("%w: stored Color state is %T", ErrStateFailed, c.previous)
		}
		for _, e := range prev {
			prevByPos[e.Position] = e
		}
	}

	var changes []canonical.Change
	for _, e := range cur {
		p, seen := prevByPos[e.Position]
		switch {
		case !seen:
			changes = append(changes, canonical.Change{
				Position:  e.Position,
				Action:    canonical.ActionSet,
				Current:   e,
				Timestamp: rec.Timestamp,
			})
		case p != e:
			changes = append(changes, canonical.Change{
				Position:  e.Position,
				Action:    canonical.ActionChanged,
				Previous:  p,
				Current:   e,
				Timestamp: rec.Timestamp,
			})
		}
	}

	return rec.WithChanges(changes, c.previous, len(changes) > 0), cur, nil
}

// diffWhole emits a single event when any field of the payload differs
// from the stored one. Used for DeviceInfo and ModuleInfo, which are
// small metadata blobs without per-position structure.
func diffWhole(c *cell, rec canonical.Record) (canonical.Record, any, error) {
	if c.previous == nil {
		change := canonical.Change{
			Action:    canonical.ActionInitialized,
			Current:   rec.Payload,
			Timestamp: rec.Timestamp,
		}
		return rec.WithChanges([]canonical.Change{change}, nil, true), rec.Payload, nil
	}

	if reflect.DeepEqual(c.previous, rec.Payload) {
		return rec.WithChanges(nil, c.previous, false), rec.Payload, nil
	}

	change := canonical.Change{
		Action:    canonical.ActionUpdated,
		Previous:  c.previous,
		Current:   rec.Payload,
		Timestamp: rec.Timestamp,
	}
	return rec.WithChanges([]canonical.Change{change}, c.previous, true), rec.Payload, nil
}

// exceeds reports whether two readings differ by more than threshold.
func exceeds(a, b, threshold float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d > threshold
}
