package eventbus

// Target reports a stored desired-state change for one light.
func Target(lightID string, on bool, brightness, mireds float64, version int64) Event {
	return Event{
		Type: EventTypeTarget,
		Data: map[string]interface{}{
			"light":      lightID,
			"on":         on,
			"brightness": brightness,
			"mireds":     mireds,
			"version":    version,
		},
	}
}

// Applied reports the target a light was driven to and the ledger batch
// holding its frames.
func Applied(lightID, batchID string, version int64, brightness, mireds float64) Event {
	return Event{
		Type: EventTypeApplied,
		Data: map[string]interface{}{
			"light":      lightID,
			"batch":      batchID,
			"version":    version,
			"brightness": brightness,
			"mireds":     mireds,
		},
	}
}

// Scene asks for a named scene to run with args.
func Scene(name string, args map[string]interface{}) Event {
	if args == nil {
		args = map[string]interface{}{}
	}
	return Event{
		Type: EventTypeScene,
		Data: map[string]interface{}{"name": name, "args": args},
	}
}
