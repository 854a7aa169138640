package protocol

// Defines constants for common LSP method names.

const (
	// Text Document Synchronization
	MethodTextDocumentDidOpen   = "textDocument/didOpen"
	MethodTextDocumentDidChange = "textDocument/didChange"
	MethodTextDocumentDidSave   = "textDocument/didSave"
	MethodTextDocumentDidClose  = "textDocument/didClose"

	// Language Features
	MethodTextDocumentHover      = "textDocument/hover"
	MethodTextDocumentCompletion = "textDocument/completion"
	MethodCompletionItemResolve  = "completionItem/resolve"
	MethodTextDocumentDefinition = "textDocument/definition"
	MethodTextDocumentCodeAction = "textDocument/codeAction"
	MethodCodeActionResolve      = "codeAction/resolve"
	// Add other language features as needed... (e.g., references, rename, formatting)

	// Text Document Synchronization (pre-save hooks)
	MethodTextDocumentWillSave           = "textDocument/willSave"
	MethodTextDocumentWillSaveWaitUntil  = "textDocument/willSaveWaitUntil"

	// Workspace Features
	MethodWorkspaceExecuteCommand          = "workspace/executeCommand"
	MethodWorkspaceApplyEdit               = "workspace/applyEdit"
	MethodWorkspaceDidChangeConfiguration  = "workspace/didChangeConfiguration"
	MethodWorkspaceConfiguration           = "workspace/configuration"
	MethodWorkspaceDidChangeWatchedFiles   = "workspace/didChangeWatchedFiles"
	MethodWorkspaceWorkspaceFolders        = "workspace/workspaceFolders"
	MethodWorkspaceDidChangeWorkspaceFolders = "workspace/didChangeWorkspaceFolders"
	MethodWorkspaceSymbol                  = "workspace/symbol"

	// Client Feature Registration
	MethodClientRegisterCapability    = "client/registerCapability"
	MethodClientUnregisterCapability  = "client/unregisterCapability"
	MethodClientRegisterFeature       = "client/registerFeature"   // legacy alias
	MethodClientUnregisterFeature     = "client/unregisterFeature" // legacy alias

	// Window Features
	MethodWindowShowMessage                 = "window/showMessage"
	MethodWindowShowMessageRequest           = "window/showMessageRequest"
	MethodWindowLogMessage                  = "window/logMessage"
	MethodWindowWorkDoneProgressCreate       = "window/workDoneProgress/create"
	MethodWindowWorkDoneProgressCancel       = "window/workDoneProgress/cancel"

	// Telemetry
	MethodTelemetryEvent = "telemetry/event"

	// Diagnostics
	MethodTextDocumentPublishDiagnostics = "textDocument/publishDiagnostics"

	// General Lifecycle
	MethodInitialize    = "initialize"
	MethodInitialized   = "initialized"
	MethodShutdown      = "shutdown"
	MethodExit          = "exit"
	MethodCancelRequest = "$/cancelRequest" // Notification to cancel a request
	MethodProgress      = "$/progress"      // Notification for progress updates
)
