package engine

// Guest ABI of engines compiled to WebAssembly.
const (
	HostModule = "moq_host"

	HostOnStatus = "on_status" // (i64 token, i32 code)
	HostOnSetup  = "on_setup"  // (i64 token, i32 ptr, i32 len)

	ExportMemory              = "memory"
	ExportAlloc               = "moq_alloc"                   // (i32 size) -> i32 ptr
	ExportFree                = "moq_free"                    // (i32 ptr)
	ExportCreate              = "engine_create"               // (i32 ptr, i32 len) -> i32 ref
	ExportRegisterCallbacks   = "engine_register_callbacks"   // (i32 ref, i64 token)
	ExportUnregisterCallbacks = "engine_unregister_callbacks" // (i32 ref)
	ExportPublish             = "engine_publish"              // (i32 ref, i32 ptr, i32 len) -> i32 track
	ExportUnpublish           = "engine_unpublish"            // (i32 ref, i32 track)
	ExportDisconnect          = "engine_disconnect"           // (i32 ref)
	ExportDestroy             = "engine_destroy"              // (i32 ref)
)

var requiredExports = []string{
	ExportAlloc,
	ExportFree,
	ExportCreate,
	ExportRegisterCallbacks,
	ExportUnregisterCallbacks,
	ExportPublish,
	ExportUnpublish,
	ExportDisconnect,
	ExportDestroy,
}
