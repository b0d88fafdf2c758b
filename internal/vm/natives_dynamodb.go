package vm

import (
	"encoding/json"
	"errors"
	"fmt"

	"noxy-vm/internal/plugin"
	"noxy-vm/internal/value"
)

func (vm *VM) dynamoClient() (*plugin.Client, error) {
	client, err := plugin.Load("dynamodb", "noxy-plugin-dynamodb")
	if err != nil {
		return nil, err
	}
	if vm.dynamoClientID == "" {
		id, err := client.Call("connect", []interface{}{map[string]interface{}{}})
		if err != nil {
			return nil, fmt.Errorf("dynamodb connect: %w", err)
		}
		vm.dynamoClientID, _ = id.(string)
	}
	return client, nil
}

// scalarString requires v to be a script string, the only key/attribute
// name representation this bridge accepts.
func scalarString(v value.Value, what string) (string, error) {
	if v.IsObj() {
		if s, ok := v.Obj.(*value.ObjStringData); ok {
			return s.Chars, nil
		}
	}
	return "", fmt.Errorf("%s must be a string", what)
}

// scalarJSON converts a script scalar Value to the plain interface{} the
// plugin protocol carries as an attribute value. The language has no
// array/map literal (spec.md §3 Data Model), so only the four scalar
// variants are representable as a DynamoDB attribute.
func scalarJSON(v value.Value) (interface{}, error) {
	switch {
	case v.IsNil():
		return nil, nil
	case v.IsBool():
		return v.Bool, nil
	case v.IsNumber():
		return v.Num, nil
	case v.IsObj():
		if s, ok := v.Obj.(*value.ObjStringData); ok {
			return s.Chars, nil
		}
	}
	return nil, errors.New("dynamodb natives only accept nil, bool, number, or string attribute values")
}

// jsonToValue converts a plugin response back to a script Value. A
// returned DynamoDB item is a JSON object, which has no first-class
// representation in this language, so it is rendered as its JSON text
// rather than silently dropped — scripts that need a specific field should
// query by key name instead.
func (vm *VM) jsonToValue(i interface{}) value.Value {
	switch v := i.(type) {
	case nil:
		return value.NilValue()
	case bool:
		return value.BoolValue(v)
	case float64:
		return value.NumberValue(v)
	case string:
		return value.ObjValue(vm.InternString(v))
	default:
		text, err := json.Marshal(v)
		if err != nil {
			return value.ObjValue(vm.InternString(fmt.Sprintf("%v", v)))
		}
		return value.ObjValue(vm.InternString(string(text)))
	}
}

// defineDynamoDBNatives wires dynamodb_get/put/query to the
// cmd/noxy-plugin-dynamodb process over internal/plugin's JSON-RPC
// protocol, per SPEC_FULL.md §3. The plugin is started lazily, on first
// call, so scripts that never touch DynamoDB never pay for launching it.
func (vm *VM) defineDynamoDBNatives() {
	// dynamodb_get(table, keyName, keyValue) -> the matched item as JSON
	// text, or nil when no item has that key
	vm.defineNative("dynamodb_get", func(args []value.Value) (value.Value, error) {
		if len(args) != 3 {
			return value.NilValue(), errors.New("dynamodb_get(table, keyName, keyValue) takes 3 arguments")
		}
		table, err := scalarString(args[0], "table")
		if err != nil {
			return value.NilValue(), err
		}
		keyName, err := scalarString(args[1], "keyName")
		if err != nil {
			return value.NilValue(), err
		}
		keyVal, err := scalarJSON(args[2])
		if err != nil {
			return value.NilValue(), err
		}
		client, err := vm.dynamoClient()
		if err != nil {
			return value.NilValue(), err
		}
		result, err := client.Call("get_item", []interface{}{
			vm.dynamoClientID, table, map[string]interface{}{keyName: keyVal},
		})
		if err != nil {
			return value.NilValue(), err
		}
		return vm.jsonToValue(result), nil
	})

	// dynamodb_put(table, keyName, keyValue, attrName, attrValue) -> true
	vm.defineNative("dynamodb_put", func(args []value.Value) (value.Value, error) {
		if len(args) != 5 {
			return value.NilValue(), errors.New("dynamodb_put(table, keyName, keyValue, attrName, attrValue) takes 5 arguments")
		}
		table, err := scalarString(args[0], "table")
		if err != nil {
			return value.NilValue(), err
		}
		keyName, err := scalarString(args[1], "keyName")
		if err != nil {
			return value.NilValue(), err
		}
		keyVal, err := scalarJSON(args[2])
		if err != nil {
			return value.NilValue(), err
		}
		attrName, err := scalarString(args[3], "attrName")
		if err != nil {
			return value.NilValue(), err
		}
		attrVal, err := scalarJSON(args[4])
		if err != nil {
			return value.NilValue(), err
		}
		client, err := vm.dynamoClient()
		if err != nil {
			return value.NilValue(), err
		}
		item := map[string]interface{}{keyName: keyVal, attrName: attrVal}
		result, err := client.Call("put_item", []interface{}{vm.dynamoClientID, table, item})
		if err != nil {
			return value.NilValue(), err
		}
		return vm.jsonToValue(result), nil
	})

	// dynamodb_query(table, keyConditionExpr, exprName, exprValue) -> the
	// JSON text of the matched items.
	vm.defineNative("dynamodb_query", func(args []value.Value) (value.Value, error) {
		if len(args) != 4 {
			return value.NilValue(), errors.New("dynamodb_query(table, keyConditionExpr, exprName, exprValue) takes 4 arguments")
		}
		table, err := scalarString(args[0], "table")
		if err != nil {
			return value.NilValue(), err
		}
		keyCond, err := scalarString(args[1], "keyConditionExpr")
		if err != nil {
			return value.NilValue(), err
		}
		exprName, err := scalarString(args[2], "exprName")
		if err != nil {
			return value.NilValue(), err
		}
		exprVal, err := scalarJSON(args[3])
		if err != nil {
			return value.NilValue(), err
		}
		client, err := vm.dynamoClient()
		if err != nil {
			return value.NilValue(), err
		}
		result, err := client.Call("query", []interface{}{
			vm.dynamoClientID, table, keyCond, map[string]interface{}{exprName: exprVal},
		})
		if err != nil {
			return value.NilValue(), err
		}
		return vm.jsonToValue(result), nil
	})
}
