// Package transfer moves a content platform's dataset from a source provider
// to a destination provider through a fixed sequence of streamed stages.
//
// An Engine bootstraps both providers, gates the run on an integrity check
// of their versions, then streams schemas, entities, links, media and
// configuration in that order. Each stage pairs a RecordReader from the
// source with a RecordWriter from the destination through a bounded window,
// so a slow destination slows the source instead of growing memory.
//
// Progress is accumulated per stage (and per aggregate key within a stage)
// and published on a broadcast feed:
//
//	engine, err := transfer.New(src, dst, transfer.Options{
//	    VersionMatching: transfer.VersionMinor,
//	})
//	if err != nil {
//	    return err
//	}
//	events := engine.Subscribe()
//	defer engine.Unsubscribe(events)
//	go render(events)
//
//	results, err := engine.Transfer(ctx)
//
// Providers advertise what they can do by implementing the optional
// capability interfaces in provider.go; the engine checks for each one
// before invoking it.
package transfer
