// Package driven lists what the core needs from the outside world:
// provider feeds and the factory that builds them, account and position
// storage, action handlers and configuration.
//
// Some ports are optional. Connectors may also implement TreeEnumerator,
// ParentResolver or DeletionInspector. The orchestrator runs without a
// PollObserver or CycleHistory, and handlers run without an IndexNotifier.
//
// Only the domain package may be imported here.
package driven
