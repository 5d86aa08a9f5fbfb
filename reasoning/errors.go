// Copyright 2024 Dolthub, Inc.
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

// Package reasoning implements OWL 2 RL materialization over an ontology
// persisted in the host key-value store: TBox/RBox storage (§6.5),
// forward-chaining materialize-at-write rules, delete-and-rederive (DRed)
// maintenance, a path-compressed union-find for owl:sameAs, and the
// query-facing ontology/reasoner API (§6.4, §4.6).
package reasoning

import "errors"

// ErrOntologyNotFound is returned by Get for an IRI with no loaded ontology.
// Delete of such an IRI succeeds without error.
var ErrOntologyNotFound = errors.New("reasoning: ontology not found")

// ErrClassNotFound names a reference to a class IRI that was never declared
// in the ontology. No function in this package returns it: Load and the
// Reasoner accept axioms and triples that mention undeclared classes.
var ErrClassNotFound = errors.New("reasoning: class not found")

// ErrPropertyNotFound names a reference to a property IRI that was never
// declared in the ontology. No function in this package returns it: an
// undeclared property is treated as having no characteristics.
var ErrPropertyNotFound = errors.New("reasoning: property not found")

// ErrDependencyCycle indicates the dependency graph between base triples
// formed a cycle during DRed traversal, an internal invariant violation
// (§7): DRed assumes the provenance graph is a DAG over distinct triples.
var ErrDependencyCycle = errors.New("reasoning: dependency graph cycle detected")

// ConsistencyViolation reports an OWL inconsistency detected at write time
// (disjointness, cardinality, irreflexivity, ...). It wraps a stack via
// github.com/pkg/errors so operators can see where the offending write
// originated, not just which triple was rejected.
type ConsistencyViolation struct {
	Rule    string
	Triple  Triple
	Message string
}

func (e *ConsistencyViolation) Error() string {
	return "reasoning: consistency violation (" + e.Rule + "): " + e.Message
}
