package app

import (
	"errors"
	"fmt"
	"log/slog"

	apierrors "janitor/internal/errors"
	"janitor/internal/jobs"
	"janitor/internal/scheduler"
	"janitor/internal/schema"
	"janitor/internal/store"
	"janitor/internal/uploads"
	"janitor/internal/validation"
	"janitor/internal/web"
)

// Extension binds one subsystem to the application. Extensions are
// initialized once each, in order; one that needs an earlier extension
// fails when that extension is not bound.
type Extension interface {
	Name() string
	Init(a *Application) error
}

// DocumentsSet names the upload set for office documents
const DocumentsSet = "documents"

// extensions returns the subsystems in initialization order
func extensions() []Extension {
	return []Extension{
		storeExtension{},
		momentExtension{},
		migrateExtension{},
		bootstrapExtension{},
		schemaExtension{},
		uploadsExtension{},
		schedulerExtension{},
	}
}

var errNotBound = errors.New("not bound")

func requires(ext, dep string, bound bool) error {
	if bound {
		return nil
	}
	return fmt.Errorf("%s requires %s: %w", ext, dep, errNotBound)
}

type storeExtension struct{}

func (storeExtension) Name() string { return "store" }

func (storeExtension) Init(a *Application) error {
	db, err := store.Open(a.Config.DatabaseURL)
	if err != nil {
		return apierrors.NewStorageError("failed to open database", err)
	}
	a.DB = db
	return nil
}

type momentExtension struct{}

func (momentExtension) Name() string { return "moment" }

func (momentExtension) Init(a *Application) error {
	a.Moment = web.NewMoment()
	return a.Pages.AddFuncs(a.Moment.FuncMap())
}

type migrateExtension struct{}

func (migrateExtension) Name() string { return "migrate" }

func (migrateExtension) Init(a *Application) error {
	if err := requires("migrate", "store", a.DB != nil); err != nil {
		return err
	}
	applied, err := a.DB.Migrate()
	if err != nil {
		return apierrors.NewStorageError("failed to migrate database", err)
	}
	a.Migrations = applied
	if len(applied) > 0 {
		a.Logger.Info("database migrated", slog.Any("versions", applied))
	}
	return nil
}

type bootstrapExtension struct{}

func (bootstrapExtension) Name() string { return "bootstrap" }

func (bootstrapExtension) Init(a *Application) error {
	a.Bootstrap = web.NewBootstrap()
	return a.Pages.AddFuncs(a.Bootstrap.FuncMap())
}

type schemaExtension struct{}

func (schemaExtension) Name() string { return "schema" }

func (schemaExtension) Init(a *Application) error {
	a.Schema = schema.New()
	return nil
}

type uploadsExtension struct{}

func (uploadsExtension) Name() string { return "uploads" }

func (uploadsExtension) Init(a *Application) error {
	documents := uploads.NewSet(DocumentsSet, uploads.Documents)
	registry, err := uploads.Configure(uploads.Destinations{
		PerSet:  map[string]string{DocumentsSet: a.Config.UploadedDocumentsDest},
		Default: a.Config.UploadsDefaultDest,
	}, documents)
	if err != nil {
		return apierrors.NewUploadError("failed to configure uploads", err)
	}
	if err := validation.NewDirValidator(a.Logger).Writable(documents.Destination()); err != nil {
		return apierrors.NewUploadError("upload destination unusable", err)
	}
	a.Uploads = registry
	a.Documents = documents
	return nil
}

type schedulerExtension struct{}

func (schedulerExtension) Name() string { return "scheduler" }

func (schedulerExtension) Init(a *Application) error {
	if err := requires("scheduler", "store", a.DB != nil); err != nil {
		return err
	}

	jobStore := a.jobStore
	if jobStore == nil {
		switch a.Config.SchedulerJobStore {
		case "sqlite":
			sqlStore, err := scheduler.NewSQLJobStore(a.DB.DB)
			if err != nil {
				return apierrors.NewSchedulerError("failed to create job store", err)
			}
			jobStore = sqlStore
		default:
			jobStore = scheduler.NewMemoryJobStore()
		}
	}

	a.recorder = jobs.NewRecorder(jobs.RunLoopID, a.processor, a.DB, a.Metrics, a.Hub, a.Logger)

	s := scheduler.New(jobStore,
		scheduler.WithLogger(a.Logger),
		scheduler.WithTracer(a.OTel.Tracer))
	s.AddListener(jobs.Listener(a.Metrics, a.Reporter, a.Logger))

	for _, spec := range a.Jobs {
		if _, err := s.AddJob(spec); err != nil {
			return apierrors.NewSchedulerError("failed to add job "+spec.ID, err)
		}
	}
	a.Scheduler = s
	return nil
}
