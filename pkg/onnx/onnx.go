// Package onnx provides Go bindings for the ONNX Runtime C API.
//
// ONNX Runtime is a cross-platform inference engine for ONNX models.
// This package wraps the C API, providing Go-native types for
// Environment, Session, and Tensor.
//
// # Architecture
//
// The package exposes four core types:
//
//   - [Env]: global environment (one per process)
//   - [SessionOptions]: execution provider and threading
//   - [Session]: loads and holds a model (.onnx file)
//   - [Tensor]: N-dimensional tensor for input/output data
//
// Usage flow:
//
//	env, _ := onnx.NewEnv("songeval")
//	defer env.Close()
//
//	session, _ := env.NewSessionFromFile("scorer.onnx", &onnx.SessionOptions{CUDA: onnx.CUDAAvailable()})
//	defer session.Close()
//
//	input, _ := onnx.NewTensor([]int64{1, 750, 1024}, data)
//	defer input.Close()
//
//	outputs, _ := session.Run([]string{"features"}, []*onnx.Tensor{input}, []string{"scores"})
//	result, _ := outputs[0].FloatData()
//
// # Dynamic Linking
//
// ONNX Runtime is dynamically linked (.dylib/.so) via CGo. On Linux the
// library is located through pkg-config (libonnxruntime.pc ships with the
// release archives); on macOS the Homebrew prefix is used.
//
// # Thread Safety
//
// Env is safe for concurrent use. Session.Run is thread-safe
// (ONNX Runtime uses internal locking).
package onnx

/*
#cgo linux pkg-config: libonnxruntime
#cgo darwin CFLAGS: -I/opt/homebrew/include/onnxruntime
#cgo darwin LDFLAGS: -L/opt/homebrew/lib -lonnxruntime

#include <onnxruntime_c_api.h>
#include <stdlib.h>
#include <string.h>

// Helper: get the ORT API pointer.
static const OrtApi* ort_api() {
    return OrtGetApiBase()->GetApi(ORT_API_VERSION);
}

// Helper: create environment.
static OrtStatus* ort_create_env(const OrtApi* api, const char* name, OrtEnv** out) {
    return api->CreateEnv(ORT_LOGGING_LEVEL_WARNING, name, out);
}

// Helper: create session options.
static OrtStatus* ort_create_session_options(const OrtApi* api, OrtSessionOptions** out) {
    return api->CreateSessionOptions(out);
}

// Helper: set intra-op thread count.
static OrtStatus* ort_set_intra_op_threads(const OrtApi* api, OrtSessionOptions* opts, int n) {
    return api->SetIntraOpNumThreads(opts, n);
}

// Helper: append the CUDA execution provider on the given device.
static OrtStatus* ort_append_cuda(const OrtApi* api, OrtSessionOptions* opts, const char* device_id) {
    OrtCUDAProviderOptionsV2* cuda = NULL;
    OrtStatus* status = api->CreateCUDAProviderOptions(&cuda);
    if (status) return status;
    const char* keys[] = {"device_id"};
    const char* values[] = {device_id};
    status = api->UpdateCUDAProviderOptions(cuda, keys, values, 1);
    if (!status) status = api->SessionOptionsAppendExecutionProvider_CUDA_V2(opts, cuda);
    api->ReleaseCUDAProviderOptions(cuda);
    return status;
}

// Helper: list execution providers compiled into the runtime.
static OrtStatus* ort_get_available_providers(const OrtApi* api, char*** out, int* n) {
    return api->GetAvailableProviders(out, n);
}

static OrtStatus* ort_release_available_providers(const OrtApi* api, char** providers, int n) {
    return api->ReleaseAvailableProviders(providers, n);
}

// Helper: create session from memory.
static OrtStatus* ort_create_session_from_memory(const OrtApi* api, OrtEnv* env,
    const void* model_data, size_t model_data_len, OrtSessionOptions* opts, OrtSession** out) {
    return api->CreateSessionFromArray(env, model_data, model_data_len, opts, out);
}

// Helper: create session from a model path.
static OrtStatus* ort_create_session_from_file(const OrtApi* api, OrtEnv* env,
    const char* path, OrtSessionOptions* opts, OrtSession** out) {
    return api->CreateSession(env, path, opts, out);
}

// kind: 0 = input, 1 = output, 2 = overridable initializer.
static OrtStatus* ort_io_count(const OrtApi* api, OrtSession* s, int kind, size_t* out) {
    switch (kind) {
    case 0: return api->SessionGetInputCount(s, out);
    case 1: return api->SessionGetOutputCount(s, out);
    default: return api->SessionGetOverridableInitializerCount(s, out);
    }
}

static OrtStatus* ort_io_name(const OrtApi* api, OrtSession* s, int kind, size_t i, char** out) {
    OrtAllocator* alloc;
    OrtStatus* status = api->GetAllocatorWithDefaultOptions(&alloc);
    if (status) return status;
    switch (kind) {
    case 0: return api->SessionGetInputName(s, i, alloc, out);
    case 1: return api->SessionGetOutputName(s, i, alloc, out);
    default: return api->SessionGetOverridableInitializerName(s, i, alloc, out);
    }
}

static void ort_free_name(const OrtApi* api, char* name) {
    OrtAllocator* alloc;
    OrtStatus* status = api->GetAllocatorWithDefaultOptions(&alloc);
    if (status) {
        api->ReleaseStatus(status);
        return;
    }
    api->AllocatorFree(alloc, name);
}

static OrtStatus* ort_io_type_info(const OrtApi* api, OrtSession* s, int kind, size_t i, OrtTypeInfo** out) {
    switch (kind) {
    case 0: return api->SessionGetInputTypeInfo(s, i, out);
    case 1: return api->SessionGetOutputTypeInfo(s, i, out);
    default: return api->SessionGetOverridableInitializerTypeInfo(s, i, out);
    }
}

// Helper: get the declared shape of a session input/output/initializer.
// Passing dims == NULL only reports the rank. Non-tensor values have rank 0.
static OrtStatus* ort_io_shape(const OrtApi* api, OrtSession* s, int kind, size_t i,
    size_t* ndim, int64_t* dims, size_t dims_len) {
    OrtTypeInfo* type_info;
    OrtStatus* status = ort_io_type_info(api, s, kind, i, &type_info);
    if (status) return status;
    const OrtTensorTypeAndShapeInfo* info = NULL;
    status = api->CastTypeInfoToTensorInfo(type_info, &info);
    if (!status) {
        if (info == NULL) {
            *ndim = 0;
        } else {
            status = api->GetDimensionsCount(info, ndim);
            if (!status && dims != NULL) status = api->GetDimensions(info, dims, dims_len);
        }
    }
    api->ReleaseTypeInfo(type_info);
    return status;
}

// Helper: create tensor with float data.
static OrtStatus* ort_create_tensor_float(const OrtApi* api, OrtMemoryInfo* info,
    float* data, size_t data_len, int64_t* shape, size_t shape_len, OrtValue** out) {
    return api->CreateTensorWithDataAsOrtValue(info, data, data_len * sizeof(float),
        shape, shape_len, ONNX_TENSOR_ELEMENT_DATA_TYPE_FLOAT, out);
}

// Helper: create CPU memory info.
static OrtStatus* ort_create_cpu_memory_info(const OrtApi* api, OrtMemoryInfo** out) {
    return api->CreateCpuMemoryInfo(OrtArenaAllocator, OrtMemTypeDefault, out);
}

// Helper: run session.
static OrtStatus* ort_run(const OrtApi* api, OrtSession* session,
    const char** input_names, const OrtValue* const* inputs, size_t num_inputs,
    const char** output_names, size_t num_outputs, OrtValue** outputs) {
    return api->Run(session, NULL, input_names, inputs, num_inputs,
        output_names, num_outputs, outputs);
}

// Helper: get tensor float data.
static OrtStatus* ort_get_tensor_float_data(const OrtApi* api, OrtValue* value, float** out) {
    return api->GetTensorMutableData(value, (void**)out);
}

// Helper: get tensor shape info.
static OrtStatus* ort_get_tensor_shape(const OrtApi* api, OrtValue* value,
    int64_t* shape, size_t shape_len) {
    OrtTensorTypeAndShapeInfo* info;
    OrtStatus* status = api->GetTensorTypeAndShape(value, &info);
    if (status) return status;
    status = api->GetDimensions(info, shape, shape_len);
    api->ReleaseTensorTypeAndShapeInfo(info);
    return status;
}

// Helper: get tensor shape dimension count.
static OrtStatus* ort_get_tensor_ndim(const OrtApi* api, OrtValue* value, size_t* ndim) {
    OrtTensorTypeAndShapeInfo* info;
    OrtStatus* status = api->GetTensorTypeAndShape(value, &info);
    if (status) return status;
    status = api->GetDimensionsCount(info, ndim);
    api->ReleaseTensorTypeAndShapeInfo(info);
    return status;
}

// Helper: get error message.
static const char* ort_error_message(const OrtApi* api, OrtStatus* status) {
    return api->GetErrorMessage(status);
}

// Helper: release status.
static void ort_release_status(const OrtApi* api, OrtStatus* status) {
    api->ReleaseStatus(status);
}

// Release helpers.
static void ort_release_env(const OrtApi* api, OrtEnv* env) { api->ReleaseEnv(env); }
static void ort_release_session(const OrtApi* api, OrtSession* s) { api->ReleaseSession(s); }
static void ort_release_session_options(const OrtApi* api, OrtSessionOptions* o) { api->ReleaseSessionOptions(o); }
static void ort_release_memory_info(const OrtApi* api, OrtMemoryInfo* i) { api->ReleaseMemoryInfo(i); }
static void ort_release_value(const OrtApi* api, OrtValue* v) { api->ReleaseValue(v); }
*/
import "C"

import (
	"fmt"
	"runtime"
	"strconv"
	"unsafe"
)

// CUDAProvider is the name ONNX Runtime reports for the CUDA execution provider.
const CUDAProvider = "CUDAExecutionProvider"

// api returns the global ORT API pointer.
func api() *C.OrtApi {
	return C.ort_api()
}

// checkStatus converts an OrtStatus to a Go error.
func checkStatus(status *C.OrtStatus) error {
	if status == nil {
		return nil
	}
	msg := C.GoString(C.ort_error_message(api(), status))
	C.ort_release_status(api(), status)
	return fmt.Errorf("onnx: %s", msg)
}

// AvailableProviders lists the execution providers compiled into the
// loaded ONNX Runtime library, e.g. "CUDAExecutionProvider".
func AvailableProviders() ([]string, error) {
	var list **C.char
	var n C.int
	if err := checkStatus(C.ort_get_available_providers(api(), &list, &n)); err != nil {
		return nil, err
	}
	defer C.ort_release_available_providers(api(), list, n)

	names := make([]string, int(n))
	for i, p := range unsafe.Slice(list, int(n)) {
		names[i] = C.GoString(p)
	}
	return names, nil
}

// CUDAAvailable reports whether the runtime was built with CUDA support.
// It does not guarantee a usable GPU; session creation still fails if the
// driver is missing.
func CUDAAvailable() bool {
	providers, err := AvailableProviders()
	if err != nil {
		return false
	}
	for _, p := range providers {
		if p == CUDAProvider {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Env
// --------------------------------------------------------------------------

// Env is the ONNX Runtime environment. Create one per process.
type Env struct {
	env *C.OrtEnv
}

// NewEnv creates a new ONNX Runtime environment.
func NewEnv(name string) (*Env, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var env *C.OrtEnv
	if err := checkStatus(C.ort_create_env(api(), cName, &env)); err != nil {
		return nil, err
	}

	e := &Env{env: env}
	runtime.SetFinalizer(e, (*Env).Close)
	return e, nil
}

// SessionOptions configures how a session executes.
type SessionOptions struct {
	// CUDA appends the CUDA execution provider ahead of the CPU provider.
	CUDA bool

	// DeviceID selects the GPU when CUDA is set.
	DeviceID int

	// IntraOpThreads bounds the threads used within one operator.
	// Zero lets ONNX Runtime decide.
	IntraOpThreads int
}

func (o *SessionOptions) build() (*C.OrtSessionOptions, error) {
	var opts *C.OrtSessionOptions
	if err := checkStatus(C.ort_create_session_options(api(), &opts)); err != nil {
		return nil, err
	}
	if o == nil {
		return opts, nil
	}
	if o.IntraOpThreads > 0 {
		if err := checkStatus(C.ort_set_intra_op_threads(api(), opts, C.int(o.IntraOpThreads))); err != nil {
			C.ort_release_session_options(api(), opts)
			return nil, err
		}
	}
	if o.CUDA {
		cDevice := C.CString(strconv.Itoa(o.DeviceID))
		defer C.free(unsafe.Pointer(cDevice))
		if err := checkStatus(C.ort_append_cuda(api(), opts, cDevice)); err != nil {
			C.ort_release_session_options(api(), opts)
			return nil, err
		}
	}
	return opts, nil
}

// NewSession creates a CPU session from in-memory ONNX model data.
func (e *Env) NewSession(modelData []byte) (*Session, error) {
	return e.NewSessionWithOptions(modelData, nil)
}

// NewSessionWithOptions creates a session from in-memory ONNX model data.
func (e *Env) NewSessionWithOptions(modelData []byte, o *SessionOptions) (*Session, error) {
	if len(modelData) == 0 {
		return nil, fmt.Errorf("onnx: empty model data")
	}

	opts, err := o.build()
	if err != nil {
		return nil, err
	}
	defer C.ort_release_session_options(api(), opts)

	var session *C.OrtSession
	if err := checkStatus(C.ort_create_session_from_memory(
		api(), e.env,
		unsafe.Pointer(&modelData[0]), C.size_t(len(modelData)),
		opts, &session,
	)); err != nil {
		return nil, err
	}

	s := &Session{session: session, pinned: modelData}
	runtime.SetFinalizer(s, (*Session).Close)
	return s, nil
}

// NewSessionFromFile creates a session from a model path. Models with
// external data files must be loaded this way so the runtime can resolve
// the sidecar files relative to the model.
func (e *Env) NewSessionFromFile(path string, o *SessionOptions) (*Session, error) {
	opts, err := o.build()
	if err != nil {
		return nil, err
	}
	defer C.ort_release_session_options(api(), opts)

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var session *C.OrtSession
	if err := checkStatus(C.ort_create_session_from_file(api(), e.env, cPath, opts, &session)); err != nil {
		return nil, err
	}

	s := &Session{session: session}
	runtime.SetFinalizer(s, (*Session).Close)
	return s, nil
}

// Close releases the environment.
func (e *Env) Close() error {
	if e.env != nil {
		C.ort_release_env(api(), e.env)
		e.env = nil
		runtime.SetFinalizer(e, nil)
	}
	return nil
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// Session holds a loaded ONNX model.
type Session struct {
	session *C.OrtSession
	pinned  any // prevents GC of model data
}

// Session value kinds understood by the ort_io_* helpers.
const (
	ioInput       C.int = 0
	ioOutput      C.int = 1
	ioInitializer C.int = 2
)

// IOInfo describes a named session value. Dynamic dimensions are -1.
type IOInfo struct {
	Name  string
	Shape []int64
}

// Inputs describes the graph inputs.
func (s *Session) Inputs() ([]IOInfo, error) {
	return s.describe(ioInput)
}

// Outputs describes the graph outputs.
func (s *Session) Outputs() ([]IOInfo, error) {
	return s.describe(ioOutput)
}

// OverridableInitializers describes the initializers that may be fed as
// extra Run inputs to replace their stored values. Models exported with
// their parameters kept as graph inputs list every weight here.
func (s *Session) OverridableInitializers() ([]IOInfo, error) {
	return s.describe(ioInitializer)
}

func (s *Session) describe(kind C.int) ([]IOInfo, error) {
	if s.session == nil {
		return nil, fmt.Errorf("onnx: session is closed")
	}
	var n C.size_t
	if err := checkStatus(C.ort_io_count(api(), s.session, kind, &n)); err != nil {
		return nil, err
	}

	infos := make([]IOInfo, int(n))
	for i := range infos {
		var cName *C.char
		if err := checkStatus(C.ort_io_name(api(), s.session, kind, C.size_t(i), &cName)); err != nil {
			return nil, err
		}
		infos[i].Name = C.GoString(cName)
		C.ort_free_name(api(), cName)

		var ndim C.size_t
		if err := checkStatus(C.ort_io_shape(api(), s.session, kind, C.size_t(i), &ndim, nil, 0)); err != nil {
			return nil, err
		}
		if ndim == 0 {
			continue
		}
		shape := make([]int64, int(ndim))
		if err := checkStatus(C.ort_io_shape(api(), s.session, kind, C.size_t(i), &ndim,
			(*C.int64_t)(unsafe.Pointer(&shape[0])), ndim)); err != nil {
			return nil, err
		}
		infos[i].Shape = shape
	}
	return infos, nil
}

// Run executes inference with the given inputs and output names.
// Returns output tensors. The caller must close each output tensor.
func (s *Session) Run(inputNames []string, inputs []*Tensor, outputNames []string) ([]*Tensor, error) {
	if s.session == nil {
		return nil, fmt.Errorf("onnx: session is closed")
	}
	if len(inputNames) != len(inputs) {
		return nil, fmt.Errorf("onnx: input names/tensors length mismatch: %d vs %d", len(inputNames), len(inputs))
	}
	if len(inputs) == 0 || len(outputNames) == 0 {
		return nil, fmt.Errorf("onnx: run needs at least one input and one output")
	}

	// Prepare C input names
	cInputNames := make([]*C.char, len(inputNames))
	for i, name := range inputNames {
		cInputNames[i] = C.CString(name)
		defer C.free(unsafe.Pointer(cInputNames[i]))
	}

	// Prepare C input values
	cInputs := make([]*C.OrtValue, len(inputs))
	for i, t := range inputs {
		cInputs[i] = t.value
	}

	// Prepare C output names
	cOutputNames := make([]*C.char, len(outputNames))
	for i, name := range outputNames {
		cOutputNames[i] = C.CString(name)
		defer C.free(unsafe.Pointer(cOutputNames[i]))
	}

	// Allocate output values
	cOutputs := make([]*C.OrtValue, len(outputNames))

	status := C.ort_run(api(), s.session,
		&cInputNames[0], &cInputs[0], C.size_t(len(inputs)),
		&cOutputNames[0], C.size_t(len(outputNames)), &cOutputs[0],
	)
	runtime.KeepAlive(inputs)
	if err := checkStatus(status); err != nil {
		return nil, err
	}

	// Wrap outputs
	outputs := make([]*Tensor, len(outputNames))
	for i, val := range cOutputs {
		outputs[i] = &Tensor{value: val, owned: true}
		runtime.SetFinalizer(outputs[i], (*Tensor).Close)
	}
	return outputs, nil
}

// Close releases the session.
func (s *Session) Close() error {
	if s.session != nil {
		C.ort_release_session(api(), s.session)
		s.session = nil
		runtime.SetFinalizer(s, nil)
	}
	return nil
}

// --------------------------------------------------------------------------
// Tensor
// --------------------------------------------------------------------------

// Tensor is an N-dimensional tensor (OrtValue).
type Tensor struct {
	value  *C.OrtValue
	pinned any  // prevents GC of external data
	owned  bool // if true, Close releases the OrtValue
}

// NewTensor creates a float32 tensor with the given shape and data.
// The data slice must remain valid for the lifetime of the Tensor.
func NewTensor(shape []int64, data []float32) (*Tensor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("onnx: empty tensor data")
	}

	// Validate shape vs data length
	total := int64(1)
	for _, d := range shape {
		total *= d
	}
	if int64(len(data)) < total {
		return nil, fmt.Errorf("onnx: tensor data too short: got %d, need %d", len(data), total)
	}

	var memInfo *C.OrtMemoryInfo
	if err := checkStatus(C.ort_create_cpu_memory_info(api(), &memInfo)); err != nil {
		return nil, err
	}
	defer C.ort_release_memory_info(api(), memInfo)

	// Scalars have an empty shape; ORT still wants a valid pointer.
	var shapePtr *C.int64_t
	if len(shape) > 0 {
		shapePtr = (*C.int64_t)(unsafe.Pointer(&shape[0]))
	}

	var value *C.OrtValue
	if err := checkStatus(C.ort_create_tensor_float(
		api(), memInfo,
		(*C.float)(unsafe.Pointer(&data[0])),
		C.size_t(len(data)),
		shapePtr,
		C.size_t(len(shape)),
		&value,
	)); err != nil {
		return nil, err
	}

	t := &Tensor{value: value, pinned: data, owned: true}
	runtime.SetFinalizer(t, (*Tensor).Close)
	return t, nil
}

// FloatData copies the tensor data into a new float32 slice.
func (t *Tensor) FloatData() ([]float32, error) {
	var ptr *C.float
	if err := checkStatus(C.ort_get_tensor_float_data(api(), t.value, &ptr)); err != nil {
		return nil, err
	}

	// Get shape to determine total elements
	var ndim C.size_t
	if err := checkStatus(C.ort_get_tensor_ndim(api(), t.value, &ndim)); err != nil {
		return nil, err
	}

	shape := make([]C.int64_t, int(ndim))
	if ndim > 0 {
		if err := checkStatus(C.ort_get_tensor_shape(api(), t.value, &shape[0], ndim)); err != nil {
			return nil, err
		}
	}

	total := 1
	for _, d := range shape {
		total *= int(d)
	}
	if total <= 0 {
		return nil, nil
	}

	out := make([]float32, total)
	C.memcpy(unsafe.Pointer(&out[0]), unsafe.Pointer(ptr), C.size_t(total*4))
	return out, nil
}

// Shape returns the tensor dimensions.
func (t *Tensor) Shape() ([]int64, error) {
	var ndim C.size_t
	if err := checkStatus(C.ort_get_tensor_ndim(api(), t.value, &ndim)); err != nil {
		return nil, err
	}

	if ndim == 0 {
		return nil, nil
	}

	shape := make([]int64, int(ndim))
	if err := checkStatus(C.ort_get_tensor_shape(api(), t.value, (*C.int64_t)(unsafe.Pointer(&shape[0])), ndim)); err != nil {
		return nil, err
	}
	return shape, nil
}

// Close releases the tensor.
func (t *Tensor) Close() error {
	if t.value != nil && t.owned {
		C.ort_release_value(api(), t.value)
		t.value = nil
		runtime.SetFinalizer(t, nil)
	}
	return nil
}
