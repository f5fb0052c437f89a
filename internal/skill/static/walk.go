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

package static

import (
	"reflect"

	"github.com/dop251/goja/ast"
)

// inspect walks node and every descendant reachable through its exported
// struct fields, calling fn on each ast.Node found. fn returning false
// prunes that subtree. Goja's AST has no built-in visitor (unlike go/ast's
// Inspect), so descent is driven by reflection over field kinds rather
// than a hand-maintained case per node type — new node kinds the walker
// has never seen are still visited correctly.
func inspect(node ast.Node, fn func(ast.Node) bool) {
	if node == nil || isNilNode(node) {
		return
	}
	if !fn(node) {
		return
	}
	v := reflect.ValueOf(node)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < v.NumField(); i++ {
		descend(v.Field(i), fn)
	}
}

func isNilNode(node ast.Node) bool {
	v := reflect.ValueOf(node)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return v.IsNil()
	default:
		return false
	}
}

func descend(v reflect.Value, fn func(ast.Node) bool) {
	if !v.CanInterface() {
		return
	}
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return
		}
		descend(v.Elem(), fn)
	case reflect.Ptr:
		if v.IsNil() {
			return
		}
		if n, ok := v.Interface().(ast.Node); ok {
			inspect(n, fn)
			return
		}
		descend(v.Elem(), fn)
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			descend(v.Index(i), fn)
		}
	case reflect.Struct:
		if v.CanAddr() {
			if n, ok := v.Addr().Interface().(ast.Node); ok {
				inspect(n, fn)
				return
			}
		}
		for i := 0; i < v.NumField(); i++ {
			descend(v.Field(i), fn)
		}
	}
}
