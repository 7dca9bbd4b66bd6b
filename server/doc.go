/*
Package server provides an HTTP JSON API for recurrence schedules that can be integrated into Go applications.

# Basic Usage

The simplest way to use this package is with the provided in-memory storage:

	store := memory.New()
	users := authmemory.New(authmemory.WithUsers(map[string]string{"alice": "secret"}))
	engine := recurrence.NewEngine()
	defer engine.Close()

	h := server.NewScheduleHandler("/api/", "librecur", store, engine, users, slog.Default())
	http.Handle(h.Prefix, h)
	http.ListenAndServe(":8080", nil)

# URL Scheme

Paths are relative to the handler prefix:
  - /healthz - Liveness probe, no authentication
  - /preview - Preview a configuration without storing it (POST)
  - /u/<userid> - User principal
  - /u/<userid>/sched - Schedule home: list and create
  - /u/<userid>/sched/<id> - Schedule: get, replace (PUT), merge (PATCH), delete
  - /u/<userid>/sched/<id>.ics - iCalendar export
  - /u/<userid>/sched/<id>.xml - xCal export
  - /u/<userid>/sched/<id>/preview - Next occurrences
  - /u/<userid>/sched/<id>/plan - Instances the job side should create
  - /u/<userid>/sched/<id>/exdates[/<date>] - Exception dates

Every schedule response carries an ETag. Writes accept If-Match and fail with
412 Precondition Failed when the schedule changed in between.

# Custom Storage Backend

To keep schedules somewhere else, implement the storage.Storage interface:

	type Storage interface {
		GetSchedule(ctx context.Context, userID, scheduleID string) (*Schedule, error)
		ListSchedules(ctx context.Context, userID string) ([]*Schedule, error)
		ListAllSchedules(ctx context.Context) ([]*Schedule, error)
		PutSchedule(ctx context.Context, sched *Schedule, opts PutOptions) (etag string, err error)
		DeleteSchedule(ctx context.Context, userID, scheduleID, ifMatch string) error
	}

Return *storage.Error values so the handler can pick the status code:

	if err == sql.ErrNoRows {
		return nil, &storage.Error{Type: storage.ErrNotFound, Message: "schedule not found"}
	}

# Background Sweep

A Sweeper periodically plans every stored schedule and hands the instances that
are due to a Sink:

	sweeper, err := server.NewSweeper(store, engine,
		server.WithSweepSpec("@every 1m"),
		server.WithSink(server.LogSink{Logger: logger}))
	if err != nil {
		log.Fatal(err)
	}
	sweeper.Start()
	defer sweeper.Stop(context.Background())

LastScheduled only advances after the sink accepted the handoff, so a Sink may
see an instance again after a failure and should be idempotent.
*/
package server
