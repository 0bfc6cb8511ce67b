// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope

import (
	"code.hybscloud.com/kont"
)

// Reify converts a Cont-world operation to Expr-world.
// The resulting Expr can be run with RunExpr or composed with the
// Expr-world fused constructors.
func Reify[A any](m Op[A]) kont.Expr[A] {
	return kont.Reify(m)
}

// Reflect converts an Expr-world operation to Cont-world.
// The resulting Op can be run with Run or composed with the kont
// combinators.
func Reflect[A any](m kont.Expr[A]) Op[A] {
	return kont.Reflect(m)
}
