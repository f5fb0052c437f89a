// Copyright 2025 ClawShield
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dynamic

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

const bufferClampBytes = 1 << 20 // 1 MiB

var dangerousSyncModules = map[string]bool{
	"child_process": true, "node:child_process": true,
	"net": true, "node:net": true,
	"dgram": true, "node:dgram": true,
	"dns": true, "node:dns": true,
}

var filesystemModules = map[string]bool{
	"fs": true, "node:fs": true,
	"fs/promises": true, "node:fs/promises": true,
}

// recorder accumulates every behavior observed during one execution. A
// single execution is single-threaded from the script's perspective, but
// the timeout watchdog touches the runtime from a second goroutine, so
// access is guarded.
type recorder struct {
	mu                 sync.Mutex
	networkAttempts    []string
	fsAttempts         []string
	suspiciousBehavior []string
}

func (r *recorder) network(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networkAttempts = append(r.networkAttempts, url)
}

func (r *recorder) fs(detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fsAttempts = append(r.fsAttempts, detail)
}

func (r *recorder) suspicious(detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspiciousBehavior = append(r.suspiciousBehavior, detail)
}

// Execute runs code inside a fresh, cooperatively isolated goja VM and
// returns a behavioral report. It never panics out to the caller: a
// timeout is reported as a suspicious-behavior entry, not an error.
func Execute(code string, timeout time.Duration) Result {
	rt := goja.New()
	rec := &recorder{}

	bindGlobals(rt, rec)

	done := make(chan struct{})
	timedOut := false

	timer := time.AfterFunc(timeout, func() {
		timedOut = true
		rt.Interrupt("execution timed out")
	})
	defer timer.Stop()

	wrapped := `"use strict"; void function() {` + "\n" + code + "\n" + `}();`

	start := time.Now()
	go func() {
		defer close(done)
		_, _ = rt.RunString(wrapped)
	}()
	<-done
	elapsed := time.Since(start)

	if timedOut {
		rec.suspicious("Execution timed out - possible infinite loop")
	}

	// Wait out a short settle window, bounded by whatever remains of the
	// caller's timeout. No script code runs during it: the setTimeout and
	// setInterval stand-ins only record their use and never queue a callback.
	settle(rt, timeout-elapsed)

	result := Result{
		ExecutionTimeMS:    elapsed.Milliseconds(),
		NetworkAttempts:    rec.networkAttempts,
		FSAttempts:         rec.fsAttempts,
		SuspiciousBehavior: rec.suspiciousBehavior,
	}
	result.Safe = computeSafe(result)
	return result
}

// settle sleeps for a short window, capped at 100ms and at remaining. It
// does not drive the VM; no queued callbacks exist to run.
func settle(rt *goja.Runtime, remaining time.Duration) {
	window := 100 * time.Millisecond
	if remaining < window {
		window = remaining
	}
	if window <= 0 {
		return
	}
	time.Sleep(window)
}

func bindGlobals(rt *goja.Runtime, rec *recorder) {
	global := rt.GlobalObject()

	// Promise is intentionally not exposed.
	_ = global.Delete("Promise")

	_ = rt.Set("fetch", func(call goja.FunctionCall) goja.Value {
		url := call.Argument(0).String()
		rec.network(url)
		resp := rt.NewObject()
		_ = resp.Set("status", 403)
		_ = resp.Set("ok", false)
		return resp
	})

	_ = rt.Set("require", func(call goja.FunctionCall) goja.Value {
		mod := call.Argument(0).String()
		switch {
		case filesystemModules[mod]:
			rec.fs(mod)
			return newFSTrap(rt, rec)
		case dangerousSyncModules[mod]:
			rec.suspicious(fmt.Sprintf("Attempted to require dangerous module: %s", mod))
			panic(rt.NewGoError(fmt.Errorf("module %q is not available", mod)))
		default:
			return rt.NewObject()
		}
	})

	process := rt.NewObject()
	_ = process.Set("env", newEnvTrap(rt, rec))
	_ = process.Set("exit", func(call goja.FunctionCall) goja.Value {
		rec.suspicious("Attempted to call process.exit()")
		return goja.Undefined()
	})
	_ = rt.Set("process", process)

	_ = rt.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		ms := call.Argument(1).ToInteger()
		if ms > 1000 {
			rec.suspicious(fmt.Sprintf("setTimeout scheduled with delay %dms", ms))
		}
		return goja.Undefined()
	})
	_ = rt.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		rec.suspicious("setInterval used")
		return goja.Undefined()
	})

	buffer := rt.NewObject()
	_ = buffer.Set("alloc", func(call goja.FunctionCall) goja.Value {
		size := call.Argument(0).ToInteger()
		clamped := size
		if clamped > bufferClampBytes {
			rec.suspicious(fmt.Sprintf("Buffer.alloc(%d) clamped to %d", size, bufferClampBytes))
			clamped = bufferClampBytes
		}
		obj := rt.NewObject()
		_ = obj.Set("length", clamped)
		return obj
	})
	_ = buffer.Set("from", func(call goja.FunctionCall) goja.Value {
		length := int64(len(call.Argument(0).String()))
		clamped := length
		if clamped > bufferClampBytes {
			rec.suspicious(fmt.Sprintf("Buffer.from(...) result clamped from %d to %d", length, bufferClampBytes))
			clamped = bufferClampBytes
		}
		obj := rt.NewObject()
		_ = obj.Set("length", clamped)
		return obj
	})
	_ = rt.Set("Buffer", buffer)

	console := rt.NewObject()
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = console.Set("log", noop)
	_ = console.Set("warn", noop)
	_ = console.Set("error", noop)
	_ = console.Set("info", noop)
	_ = console.Set("debug", noop)
	_ = rt.Set("console", console)

	// JSON, Math, Date, Array, Object, String, Number, Boolean, RegExp,
	// Map, Set, Error/TypeError/RangeError, parseInt/parseFloat, isNaN,
	// isFinite, and the encode/decodeURI family are goja's own
	// ECMAScript-native globals and are left untouched.

	for _, name := range []string{"fetch", "require", "process", "setTimeout", "setInterval", "Buffer", "console"} {
		if obj, ok := rt.Get(name).(*goja.Object); ok {
			_ = obj.Set("__frozen", true) // best-effort marker; real freeze below
			freezeObject(rt, obj)
		}
	}
}

// freezeObject calls the ECMAScript Object.freeze on obj from the host
// side, blocking prototype-pollution attempts against bound globals.
func freezeObject(rt *goja.Runtime, obj *goja.Object) {
	freeze, ok := goja.AssertFunction(rt.GlobalObject().Get("Object").ToObject(rt).Get("freeze"))
	if !ok {
		return
	}
	_, _ = freeze(goja.Undefined(), obj)
}

// newEnvTrap returns an object whose property gets are all recorded and
// answered with the literal string "undefined", modeling process.env.
func newEnvTrap(rt *goja.Runtime, rec *recorder) goja.Value {
	target := rt.NewObject()
	proxy := rt.NewProxy(target, &goja.ProxyTrapConfig{
		Get: func(target *goja.Object, property string, receiver goja.Value) goja.Value {
			rec.suspicious(fmt.Sprintf("Attempted to access process.env.%s", property))
			return rt.ToValue("undefined")
		},
	})
	return rt.ToValue(proxy)
}

// newFSTrap returns a deep proxy: every property access yields another
// instance of itself (so chained access like fs.promises.readFile keeps
// recording), and any attempt to call it throws.
func newFSTrap(rt *goja.Runtime, rec *recorder) goja.Value {
	target := rt.ToValue(func(goja.FunctionCall) goja.Value { return goja.Undefined() }).ToObject(rt)
	var self *goja.Object
	handler := &goja.ProxyTrapConfig{
		Get: func(target *goja.Object, property string, receiver goja.Value) goja.Value {
			rec.fs(fmt.Sprintf("property access: %s", property))
			return newFSTrap(rt, rec)
		},
		Apply: func(target *goja.Object, this goja.Value, args []goja.Value) goja.Value {
			rec.fs("invocation attempted")
			panic(rt.NewGoError(fmt.Errorf("filesystem access is not available")))
		},
	}
	proxy := rt.NewProxy(target, handler)
	self = rt.ToValue(proxy).ToObject(rt)
	_ = self
	return rt.ToValue(proxy)
}
