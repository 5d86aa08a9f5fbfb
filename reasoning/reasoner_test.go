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

package reasoning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/coredb/kv"
)

func beginTx(t *testing.T, ctx context.Context) kv.Transaction {
	store := kv.NewMemStore()
	tx, err := store.BeginTx(ctx, nil)
	require.NoError(t, err)
	return tx
}

const testOntology = "http://example.org/onto"

func employeePersonOntology() Ontology {
	return Ontology{
		IRI: testOntology,
		Classes: []ClassDefinition{
			{IRI: "Employee"}, {IRI: "Person"}, {IRI: "Manager"},
		},
		Axioms: []Axiom{
			{ID: "ax1", Kind: AxiomSubClassOf, Left: "Employee", Right: "Person"},
			{ID: "ax2", Kind: AxiomSubClassOf, Left: "Manager", Right: "Employee"},
		},
	}
}

func TestGetSuperClassesIsTransitiveClosure(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(t, ctx)
	cat := NewCatalog()
	require.NoError(t, cat.Load(ctx, tx, employeePersonOntology()))

	r := cat.Reasoner(testOntology, Config{}, nil)
	supers, err := r.GetSuperClasses(ctx, tx, "Manager")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Employee", "Person"}, supers)
}

func TestAssertTriplePropagatesClassHierarchy(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(t, ctx)
	cat := NewCatalog()
	require.NoError(t, cat.Load(ctx, tx, employeePersonOntology()))

	r := cat.Reasoner(testOntology, Config{}, nil)
	inferred, err := r.AssertTriple(ctx, tx, Triple{Subject: "Alice", Predicate: PredRDFType, Object: "Employee"})
	require.NoError(t, err)
	require.Contains(t, inferred, Triple{Subject: "Alice", Predicate: PredRDFType, Object: "Person"})

	rec, found, err := r.store.GetTriple(ctx, tx, testOntology, Triple{Subject: "Alice", Predicate: PredRDFType, Object: "Person"})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "cax-sco", rec.Provenance.Rule)
	require.Equal(t, []Triple{{Subject: "Alice", Predicate: PredRDFType, Object: "Employee"}}, rec.Provenance.Antecedents)
}

func TestDRedRemovesInferredTripleWhenNoAlternativeProvenance(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(t, ctx)
	cat := NewCatalog()
	require.NoError(t, cat.Load(ctx, tx, employeePersonOntology()))

	r := cat.Reasoner(testOntology, Config{}, nil)
	_, err := r.AssertTriple(ctx, tx, Triple{Subject: "Alice", Predicate: PredRDFType, Object: "Employee"})
	require.NoError(t, err)

	require.NoError(t, r.RetractTriple(ctx, tx, Triple{Subject: "Alice", Predicate: PredRDFType, Object: "Employee"}))

	_, found, err := r.store.GetTriple(ctx, tx, testOntology, Triple{Subject: "Alice", Predicate: PredRDFType, Object: "Person"})
	require.NoError(t, err)
	require.False(t, found, "Person typing should be deleted: Employee typing was its only antecedent")

	_, found, err = r.store.GetTriple(ctx, tx, testOntology, Triple{Subject: "Alice", Predicate: PredRDFType, Object: "Employee"})
	require.NoError(t, err)
	require.False(t, found)
}

func TestDRedRederivesWhenAlternativeProvenanceExists(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(t, ctx)
	cat := NewCatalog()
	ont := employeePersonOntology()
	// Add a second, independent path to Person: Contractor ⊑ Person directly.
	ont.Classes = append(ont.Classes, ClassDefinition{IRI: "Contractor"})
	ont.Axioms = append(ont.Axioms, Axiom{ID: "ax3", Kind: AxiomSubClassOf, Left: "Contractor", Right: "Person"})
	require.NoError(t, cat.Load(ctx, tx, ont))

	r := cat.Reasoner(testOntology, Config{}, nil)
	_, err := r.AssertTriple(ctx, tx, Triple{Subject: "Alice", Predicate: PredRDFType, Object: "Employee"})
	require.NoError(t, err)
	_, err = r.AssertTriple(ctx, tx, Triple{Subject: "Alice", Predicate: PredRDFType, Object: "Contractor"})
	require.NoError(t, err)

	require.NoError(t, r.RetractTriple(ctx, tx, Triple{Subject: "Alice", Predicate: PredRDFType, Object: "Employee"}))

	rec, found, err := r.store.GetTriple(ctx, tx, testOntology, Triple{Subject: "Alice", Predicate: PredRDFType, Object: "Person"})
	require.NoError(t, err)
	require.True(t, found, "Person typing should survive via the Contractor path")
	require.Equal(t, []Triple{{Subject: "Alice", Predicate: PredRDFType, Object: "Contractor"}}, rec.Provenance.Antecedents)
}

func TestSameAsUnionFindReflexiveSymmetricTransitive(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(t, ctx)
	cat := NewCatalog()
	require.NoError(t, cat.Load(ctx, tx, Ontology{IRI: testOntology}))

	r := cat.Reasoner(testOntology, Config{}, nil)
	_, err := r.AssertTriple(ctx, tx, Triple{Subject: "Bob", Predicate: PredSameAs, Object: "Robert"})
	require.NoError(t, err)
	_, err = r.AssertTriple(ctx, tx, Triple{Subject: "Robert", Predicate: PredSameAs, Object: "Bobby"})
	require.NoError(t, err)

	rBob, err := r.SameAs(ctx, tx, "Bob")
	require.NoError(t, err)
	rBobby, err := r.SameAs(ctx, tx, "Bobby")
	require.NoError(t, err)
	require.Equal(t, rBob, rBobby)

	members, err := r.SameAsMembers(ctx, tx, rBob)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Bob", "Robert", "Bobby"}, members)
}

func TestSymmetricAndInverseMaterialization(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(t, ctx)
	cat := NewCatalog()
	ont := Ontology{
		IRI: testOntology,
		Properties: []PropertyDefinition{
			{IRI: "friendOf", Characteristics: map[PropertyCharacteristic]bool{CharSymmetric: true}},
			{IRI: "parentOf", InverseOf: "childOf"},
		},
	}
	require.NoError(t, cat.Load(ctx, tx, ont))

	r := cat.Reasoner(testOntology, Config{}, nil)
	inferred, err := r.AssertTriple(ctx, tx, Triple{Subject: "Alice", Predicate: "friendOf", Object: "Bob"})
	require.NoError(t, err)
	require.Contains(t, inferred, Triple{Subject: "Bob", Predicate: "friendOf", Object: "Alice"})

	inferred, err = r.AssertTriple(ctx, tx, Triple{Subject: "Carol", Predicate: "parentOf", Object: "Dave"})
	require.NoError(t, err)
	require.Contains(t, inferred, Triple{Subject: "Dave", Predicate: "childOf", Object: "Carol"})
}

func TestFunctionalPropertyViolationAborts(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(t, ctx)
	cat := NewCatalog()
	ont := Ontology{
		IRI: testOntology,
		Properties: []PropertyDefinition{
			{IRI: "hasSSN", Characteristics: map[PropertyCharacteristic]bool{CharFunctional: true}},
		},
	}
	require.NoError(t, cat.Load(ctx, tx, ont))

	r := cat.Reasoner(testOntology, Config{}, nil)
	_, err := r.AssertTriple(ctx, tx, Triple{Subject: "Alice", Predicate: "hasSSN", Object: "111-11-1111"})
	require.NoError(t, err)

	_, err = r.AssertTriple(ctx, tx, Triple{Subject: "Alice", Predicate: "hasSSN", Object: "222-22-2222"})
	require.Error(t, err)
	var violation *ConsistencyViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "prp-fp", violation.Rule)
}

func TestIrreflexivePropertyViolationAborts(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(t, ctx)
	cat := NewCatalog()
	ont := Ontology{
		IRI: testOntology,
		Properties: []PropertyDefinition{
			{IRI: "marriedTo", Characteristics: map[PropertyCharacteristic]bool{CharIrreflexive: true}},
		},
	}
	require.NoError(t, cat.Load(ctx, tx, ont))

	r := cat.Reasoner(testOntology, Config{}, nil)
	_, err := r.AssertTriple(ctx, tx, Triple{Subject: "Alice", Predicate: "marriedTo", Object: "Alice"})
	require.Error(t, err)
	var violation *ConsistencyViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "prp-irp", violation.Rule)
}

func TestConsistencyChecksCanBeSkipped(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(t, ctx)
	cat := NewCatalog()
	ont := Ontology{
		IRI: testOntology,
		Properties: []PropertyDefinition{
			{IRI: "marriedTo", Characteristics: map[PropertyCharacteristic]bool{CharIrreflexive: true}},
		},
	}
	require.NoError(t, cat.Load(ctx, tx, ont))

	r := cat.Reasoner(testOntology, Config{SkipConsistencyChecks: true}, nil)
	_, err := r.AssertTriple(ctx, tx, Triple{Subject: "Alice", Predicate: "marriedTo", Object: "Alice"})
	require.NoError(t, err)
}

func TestTransitiveClosureQueryTimeRewrite(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(t, ctx)
	cat := NewCatalog()
	ont := Ontology{
		IRI: testOntology,
		Properties: []PropertyDefinition{
			{IRI: "ancestorOf", Characteristics: map[PropertyCharacteristic]bool{CharTransitive: true}},
		},
	}
	require.NoError(t, cat.Load(ctx, tx, ont))

	r := cat.Reasoner(testOntology, Config{}, nil)
	_, err := r.AssertTriple(ctx, tx, Triple{Subject: "a", Predicate: "ancestorOf", Object: "b"})
	require.NoError(t, err)
	_, err = r.AssertTriple(ctx, tx, Triple{Subject: "b", Predicate: "ancestorOf", Object: "c"})
	require.NoError(t, err)

	closure, err := r.TransitiveClosure(ctx, tx, "a", "ancestorOf")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"b", "c"}, closure)
}

func TestPropertyChainClosure(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(t, ctx)
	cat := NewCatalog()
	ont := Ontology{
		IRI: testOntology,
		Axioms: []Axiom{
			{ID: "chain1", Kind: AxiomPropertyChain, TargetProp: "uncleOf", Chain: []IRI{"parentOf", "brotherOf"}},
		},
	}
	require.NoError(t, cat.Load(ctx, tx, ont))

	r := cat.Reasoner(testOntology, Config{}, nil)
	_, err := r.AssertTriple(ctx, tx, Triple{Subject: "Dave", Predicate: "parentOf", Object: "Eve"})
	require.NoError(t, err)
	_, err = r.AssertTriple(ctx, tx, Triple{Subject: "Eve", Predicate: "brotherOf", Object: "Frank"})
	require.NoError(t, err)

	result, err := r.PropertyChainClosure(ctx, tx, "Dave", "uncleOf", "chain1")
	require.NoError(t, err)
	require.Equal(t, []IRI{"Frank"}, result)
}

func TestCatalogDeleteForgetsOntology(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(t, ctx)
	cat := NewCatalog()
	require.NoError(t, cat.Load(ctx, tx, employeePersonOntology()))

	_, err := cat.Get(ctx, tx, testOntology)
	require.NoError(t, err)

	require.NoError(t, cat.Delete(ctx, tx, testOntology))
	_, err = cat.Get(ctx, tx, testOntology)
	require.ErrorIs(t, err, ErrOntologyNotFound)
}
