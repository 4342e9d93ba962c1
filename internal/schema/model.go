package schema

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"duck-etl/internal/domain"
)

// ParseModel decodes a YAML table model and checks it. Unknown fields are
// rejected.
//
//	name: customers
//	description: Customers from source.
//	columns:
//	  - name: customer_id
//	    type: VARCHAR
//	    description: Unique customer id.
func ParseModel(data []byte) (domain.TableModel, error) {
	var model domain.TableModel
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&model); err != nil {
		return domain.TableModel{}, domain.ErrConfiguration("parse model: %v", err)
	}
	if err := CheckModel(model); err != nil {
		return domain.TableModel{}, err
	}
	return model, nil
}

// LoadModel reads a YAML table model from path.
func LoadModel(path string) (domain.TableModel, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified model files
	if err != nil {
		return domain.TableModel{}, fmt.Errorf("read %s: %w", path, err)
	}
	model, err := ParseModel(data)
	if err != nil {
		return domain.TableModel{}, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}
