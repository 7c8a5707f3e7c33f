package rule

import (
	"context"
	"encoding/json"
	"storefront/internal/service/order/domain"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// CELRuleEngine 对订单摘要求值一条布尔表达式，表达式中通过 order 变量访问字段，
// 例如: order.totalPrice >= 50.0 && order.userEmail.endsWith("@example.com")
type CELRuleEngine struct {
	expr    string
	program cel.Program
}

// NewCELRuleEngine 在启动时编译表达式，语法或类型错误直接返回
func NewCELRuleEngine(expr string) (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("order", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile rule %q", expr)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("rule %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build program for rule %q", expr)
	}
	return &CELRuleEngine{expr: expr, program: program}, nil
}

func (e *CELRuleEngine) String() string {
	return e.expr
}

// Evaluate 判断订单摘要是否满足规则
func (e *CELRuleEngine) Evaluate(ctx context.Context, event domain.OrderPlaced) (bool, error) {
	fact, err := toFact(event)
	if err != nil {
		return false, err
	}

	out, _, err := e.program.ContextEval(ctx, map[string]any{"order": fact})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate rule %q", e.expr)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("rule %q returned %T", e.expr, out.Value())
	}
	return matched, nil
}

// toFact 把摘要转成 map，金额转成 double 以便在表达式中比较
func toFact(event domain.OrderPlaced) (map[string]any, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrap(err, "marshal order summary")
	}
	var fact map[string]any
	if err := json.Unmarshal(data, &fact); err != nil {
		return nil, errors.Wrap(err, "unmarshal order summary")
	}
	total, err := event.TotalPrice.Float64()
	if err != nil {
		return nil, errors.Wrapf(err, "parse total price %q", event.TotalPrice)
	}
	fact["totalPrice"] = total
	return fact, nil
}
