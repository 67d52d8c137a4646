package cvmetrics

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadLabels reads the labels used to train the Model from the given text file.
// It should contain one label per line, the class ID of a label is its line
// number counting from zero.
func LoadLabels(file string) ([]string, error) {

	// open the file
	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	// create a scanner to read the file.
	scanner := bufio.NewScanner(f)

	var labels []string

	// read and trim each line
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		labels = append(labels, line)
	}

	// check for errors during scanning
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	// drop trailing blank lines so a final newline does not create a class
	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}

	return labels, nil
}

// ClassIDs returns the class ID of every label
func ClassIDs(labels []string) []int {

	ids := make([]int, len(labels))

	for i := range labels {
		ids[i] = i
	}

	return ids
}

// ClassName returns the label for the class ID, or the ID as text when it
// is outside the labels range
func ClassName(labels []string, class int) string {

	if class >= 0 && class < len(labels) {
		return labels[class]
	}

	return fmt.Sprintf("%d", class)
}
