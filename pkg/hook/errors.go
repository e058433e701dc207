// Copyright 2025 MassGen Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hook

import "fmt"

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }

func errConfig(format string, args ...any) error {
	return &configError{msg: fmt.Sprintf(format, args...)}
}

func errRuntime(recovered any) error {
	return fmt.Errorf("hook panicked: %v", recovered)
}

func isConfigError(err error) bool {
	_, ok := err.(*configError)
	return ok
}
