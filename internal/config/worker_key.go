package config

type WorkerKeyStruct struct {
	PersistDiagnosticsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistDiagnosticsQueue: "persist_assessment_diagnostics_queue",
}
