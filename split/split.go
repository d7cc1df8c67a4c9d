// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// Package split partitions a labeled dataset into stratified train and test subsets.
package split

import (
	"math"
	"math/rand"
	"slices"
	"sort"

	"github.com/pkg/errors"
)

// TrainTest splits the examples, given by their class index, into train and test index sets.
//
// The test set has exactly ceil(testFraction*N) examples, and each class contributes to it
// in proportion to its frequency (largest remainder rounding). Every class keeps at least one
// example in each partition whenever it has 2 or more examples.
//
// The split is deterministic given the seed.
func TrainTest(classIdx []int, testFraction float64, seed int64) (train, test []int, err error) {
	n := len(classIdx)
	if testFraction <= 0 || testFraction >= 1 || math.IsNaN(testFraction) {
		return nil, nil, errors.Errorf("test fraction must be in the open range (0, 1), got %g", testFraction)
	}
	// Small tolerance so that, for instance, 0.1*30 gives 3 and not 4.
	nTest := int(math.Ceil(testFraction*float64(n) - 1e-9))
	nTrain := n - nTest
	if nTest <= 0 || nTrain <= 0 {
		return nil, nil, errors.Errorf("splitting %d examples with test fraction %g leaves an empty partition (train=%d, test=%d)",
			n, testFraction, nTrain, nTest)
	}

	byClass := make(map[int][]int)
	for exampleIdx, class := range classIdx {
		if class < 0 {
			return nil, nil, errors.Errorf("example #%d has invalid class index %d", exampleIdx, class)
		}
		byClass[class] = append(byClass[class], exampleIdx)
	}
	classes := make([]int, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	slices.Sort(classes)
	if nTest < len(classes) {
		return nil, nil, errors.Errorf("test partition of %d examples is smaller than the number of classes (%d), "+
			"increase the test fraction or the dataset", nTest, len(classes))
	}
	if nTrain < len(classes) {
		return nil, nil, errors.Errorf("train partition of %d examples is smaller than the number of classes (%d), "+
			"decrease the test fraction or increase the dataset", nTrain, len(classes))
	}

	counts := make([]int, len(classes))
	for ii, class := range classes {
		counts[ii] = len(byClass[class])
	}
	allocation := allocate(counts, nTest)

	rng := rand.New(rand.NewSource(seed))
	for ii, class := range classes {
		members := slices.Clone(byClass[class])
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		test = append(test, members[:allocation[ii]]...)
		train = append(train, members[allocation[ii]:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}

// allocate distributes total among classes proportionally to counts: each class gets the
// floor of its share, and the remaining units go to the classes with the largest fractional
// parts (ties go to the larger class, then to the lower index).
func allocate(counts []int, total int) []int {
	n := 0
	for _, c := range counts {
		n += c
	}
	allocation := make([]int, len(counts))
	remainders := make([]float64, len(counts))
	assigned := 0
	for ii, c := range counts {
		share := float64(c) * float64(total) / float64(n)
		allocation[ii] = int(math.Floor(share + 1e-9))
		remainders[ii] = share - float64(allocation[ii])
		assigned += allocation[ii]
	}
	order := make([]int, len(counts))
	for ii := range order {
		order[ii] = ii
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if remainders[a] != remainders[b] {
			return remainders[a] > remainders[b]
		}
		return counts[a] > counts[b]
	})
	for ii := 0; assigned < total; ii = (ii + 1) % len(order) {
		classIdx := order[ii]
		if allocation[classIdx] < counts[classIdx] {
			allocation[classIdx]++
			assigned++
		}
	}

	// Every class with 2 or more examples must keep examples on both sides.
	for ii, c := range counts {
		if c < 2 {
			continue
		}
		if allocation[ii] == 0 {
			if donor := largestDonor(allocation, counts, ii, 1); donor >= 0 {
				allocation[donor]--
				allocation[ii]++
			}
		} else if allocation[ii] == c {
			if receiver := largestReceiver(allocation, counts, ii); receiver >= 0 {
				allocation[ii]--
				allocation[receiver]++
			}
		}
	}
	return allocation
}

// largestDonor returns the class with the most test examples that can give one away and still keep
// at least minKeep, or -1.
func largestDonor(allocation, counts []int, exclude, minKeep int) int {
	donor := -1
	for ii := range allocation {
		if ii == exclude || allocation[ii] <= minKeep {
			continue
		}
		if donor < 0 || allocation[ii] > allocation[donor] {
			donor = ii
		}
	}
	return donor
}

// largestReceiver returns the class with the most train examples left that can move one to test, or -1.
func largestReceiver(allocation, counts []int, exclude int) int {
	receiver := -1
	for ii := range allocation {
		if ii == exclude || counts[ii]-allocation[ii] <= 1 {
			continue
		}
		if receiver < 0 || counts[ii]-allocation[ii] > counts[receiver]-allocation[receiver] {
			receiver = ii
		}
	}
	return receiver
}
