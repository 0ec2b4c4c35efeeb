package builtin

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
)

func newStateTrigger(t *testing.T, bus *fakeBus, params map[string]any) *itemStateChangeTrigger {
	t.Helper()
	factory := newItemStateChangeFactory(Deps{Bus: bus, Logger: noopLogger{}})
	h, err := factory(automation.NewTrigger("state", TypeItemStateChange, configOf(t, params)))
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	return h.(*itemStateChangeTrigger)
}

func TestItemStateChangeTrigger_FiresOnChange(t *testing.T) {
	bus := newFakeBus()
	trig := newStateTrigger(t, bus, map[string]any{"itemName": "light-1", "property": "on"})
	rec := newEventRecorder()
	if err := trig.Arm(rec.callback); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	defer trig.Dispose()

	topic := "graylogic/state/knx/light-1"
	mustDeliver(t, bus, topic, `{"device_id":"light-1","state":{"on":false}}`) // baseline
	mustDeliver(t, bus, topic, `{"device_id":"light-1","state":{"on":false}}`) // unchanged
	mustDeliver(t, bus, topic, `{"device_id":"light-1","state":{"on":true}}`)
	mustDeliver(t, bus, "graylogic/state/knx/light-2", `{"device_id":"light-2","state":{"on":false}}`)

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %v", len(events), events)
	}
	ev := events[0]
	if ev["oldState"] != "false" || ev["newState"] != "true" {
		t.Errorf("event = %v, want false -> true", ev)
	}
	if ev["itemName"] != "light-1" || ev["protocol"] != "knx" {
		t.Errorf("event item/protocol = %v/%v", ev["itemName"], ev["protocol"])
	}
}

func TestItemStateChangeTrigger_SharedItemFiresForEveryRule(t *testing.T) {
	bus := newFakeBus()
	topic := "graylogic/state/knx/lamp"
	bus.retain(topic, `{"device_id":"lamp","state":{"on":false}}`)

	first := newStateTrigger(t, bus, map[string]any{"itemName": "lamp", "property": "on"})
	second := newStateTrigger(t, bus, map[string]any{"itemName": "lamp", "property": "on"})
	recFirst, recSecond := newEventRecorder(), newEventRecorder()
	if err := first.Arm(recFirst.callback); err != nil {
		t.Fatalf("Arm(first): %v", err)
	}
	defer first.Dispose()
	if err := second.Arm(recSecond.callback); err != nil {
		t.Fatalf("Arm(second): %v", err)
	}
	defer second.Dispose()

	mustDeliver(t, bus, topic, `{"device_id":"lamp","state":{"on":true}}`)

	for name, rec := range map[string]*eventRecorder{"first": recFirst, "second": recSecond} {
		events := rec.all()
		if len(events) != 1 {
			t.Errorf("%s trigger got %d events, want 1", name, len(events))
			continue
		}
		if events[0]["oldState"] != "false" || events[0]["newState"] != "true" {
			t.Errorf("%s event = %v, want false -> true", name, events[0])
		}
	}
}

func TestItemStateChangeTrigger_Filters(t *testing.T) {
	bus := newFakeBus()
	trig := newStateTrigger(t, bus, map[string]any{
		"itemName":      "blind-1",
		"property":      "position",
		"previousState": "0",
		"state":         "100",
	})
	rec := newEventRecorder()
	if err := trig.Arm(rec.callback); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	defer trig.Dispose()

	topic := "graylogic/state/knx/blind-1"
	for _, pos := range []string{"0", "50", "100", "0", "100"} {
		mustDeliver(t, bus, topic, `{"device_id":"blind-1","state":{"position":`+pos+`}}`)
	}

	// Only the final 0 -> 100 matches both filters.
	if n := len(rec.all()); n != 1 {
		t.Errorf("got %d events, want 1", n)
	}
}

func TestItemStateChangeTrigger_WholeState(t *testing.T) {
	bus := newFakeBus()
	trig := newStateTrigger(t, bus, map[string]any{"itemName": "sensor-1"})
	rec := newEventRecorder()
	if err := trig.Arm(rec.callback); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	defer trig.Dispose()

	topic := "graylogic/state/modbus/sensor-1"
	mustDeliver(t, bus, topic, `{"state":{"temp":20,"hum":40}}`)
	mustDeliver(t, bus, topic, `{"state":{"hum":40,"temp":20}}`) // same state, different key order
	mustDeliver(t, bus, topic, `{"state":{"temp":21,"hum":40}}`)

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if got := events[0]["newState"]; got != `{"hum":40,"temp":21}` {
		t.Errorf("newState = %v", got)
	}
}

func TestItemStateChangeTrigger_BadPayload(t *testing.T) {
	bus := newFakeBus()
	trig := newStateTrigger(t, bus, map[string]any{"itemName": "light-1"})
	if err := trig.Arm(newEventRecorder().callback); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	defer trig.Dispose()

	if err := bus.deliver("graylogic/state/knx/light-1", []byte("not json")); err == nil {
		t.Error("deliver() error = nil, want decode error")
	}
}

func TestItemStateChangeTrigger_DisarmStopsEvents(t *testing.T) {
	bus := newFakeBus()
	trig := newStateTrigger(t, bus, map[string]any{"itemName": "light-1", "property": "on"})
	rec := newEventRecorder()
	if err := trig.Arm(rec.callback); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if bus.subscriptions() != 1 {
		t.Fatalf("subscriptions = %d, want 1", bus.subscriptions())
	}

	trig.Disarm()
	if bus.subscriptions() != 0 {
		t.Errorf("subscriptions after Disarm = %d, want 0", bus.subscriptions())
	}
	// A late message racing the unsubscribe must not fire.
	if err := trig.handle("graylogic/state/knx/light-1", []byte(`{"state":{"on":true}}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := trig.handle("graylogic/state/knx/light-1", []byte(`{"state":{"on":false}}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("got %d events after Disarm", n)
	}
	if err := trig.Dispose(); err != nil {
		t.Errorf("Dispose: %v", err)
	}
}

func TestItemStateChangeTrigger_ArmError(t *testing.T) {
	bus := newFakeBus()
	bus.subscribeErr = errBusDown
	trig := newStateTrigger(t, bus, map[string]any{"itemName": "light-1"})
	if err := trig.Arm(newEventRecorder().callback); !errors.Is(err, errBusDown) {
		t.Errorf("Arm() error = %v, want %v", err, errBusDown)
	}
}

func TestItemStateChangeTrigger_EmptyItem(t *testing.T) {
	factory := newItemStateChangeFactory(Deps{Bus: newFakeBus(), Logger: noopLogger{}})
	_, err := factory(automation.NewTrigger("state", TypeItemStateChange, configOf(t, map[string]any{"itemName": ""})))
	if err == nil {
		t.Error("factory() error = nil, want error for empty itemName")
	}
}

func mustDeliver(t *testing.T, bus *fakeBus, topic, payload string) {
	t.Helper()
	if err := bus.deliver(topic, []byte(payload)); err != nil {
		t.Fatalf("deliver(%s): %v", topic, err)
	}
}
