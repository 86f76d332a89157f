// Package ui renders terminal output for the localota CLI.
//
// Components follow a "render once and exit" pattern built on Lipgloss and
// Bubble Tea: they print polished output and return. The device picker is
// the one interactive exception.
//
// # Components
//
//   - Header: command banner with the operation name and its parameters
//   - Progress: step list and progress bar driven by session events
//   - Result: success, failure and warning boxes with troubleshooting tips
//   - LogBox: bordered box for device logs and build output
//   - HistoryTable: the session journal as a table
//   - PickerModel: choose one of several discovered devices, or type an address
//
// SessionView ties the first three together for an update: print the
// header, pass SessionView.Observe as the session observer, then print the
// report with Finish.
//
//	view := ui.NewSessionView(os.Stdout, "localota update", params, skipStatus)
//	view.Start()
//	cfg.Observer = view.Observe
//	report := session.New(cfg).Run(ctx)
//	view.Finish(report)
//
// # Logging Integration
//
// zap logging stays silent unless LOCALOTA_LOG_LEVEL or --log-level is set,
// so the curated output here is the only thing operators see by default.
package ui
